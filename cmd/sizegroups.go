package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/jobs"
	"github.com/storefrontlab/catalog-crawler/internal/sizegroup"
)

func newSizeGroupsCmd() *cobra.Command {
	var (
		reset     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "size-groups",
		Short: "Assign uploaded variants to size groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if batchSize > 0 {
				a.cfg.SizeGroups.BatchSize = batchSize
			}
			if err := runSizeGroups(ctx, a, reset); err != nil {
				a.logger.Error("size-group processing failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "discard the checkpoint and rescan from the start")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override sizegroups.batch_size")
	return cmd
}

func runSizeGroups(ctx context.Context, a *app, reset bool) error {
	pool, store, checkpoints, err := openDatabase(ctx, a)
	if err != nil {
		return err
	}
	defer pool.Close()

	groups, err := store.LoadSizeGroups(ctx)
	if err != nil {
		return err
	}
	matcher, err := sizegroup.New(groups, a.cfg.SizeGroups.UnknownLabel)
	if err != nil {
		return err
	}
	a.logger.Info("size-group vocabulary loaded", zap.Int("groups", len(groups)))

	job := &jobs.SizeGroupJob{
		Store:       store,
		Checkpoints: checkpoints,
		Matcher:     matcher,
		BatchSize:   a.cfg.SizeGroups.BatchSize,
		Logger:      a.logger,
	}
	summary, err := job.Run(ctx, !reset)
	if err != nil {
		return err
	}

	a.logger.Info("size-group processing finished",
		zap.Int64("processed", summary.Processed),
		zap.Int64("matched", summary.Matched),
		zap.Int64("skipped", summary.Skipped),
	)
	return nil
}
