package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/uploader"
)

func newUploadCmd() *cobra.Command {
	var entities []string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Drain staged batch files into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			kinds, err := parseKinds(entities)
			if err != nil {
				return err
			}
			if err := runUpload(ctx, a, kinds); err != nil {
				a.logger.Error("upload failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&entities, "entities", nil,
		"entity kinds to upload (default: shops,collections,products,collection_products)")
	return cmd
}

func runUpload(ctx context.Context, a *app, kinds []catalog.EntityKind) error {
	blobs, closeBlobs, err := newBlobStore(ctx, a)
	if err != nil {
		return err
	}
	defer closeBlobs()

	pool, store, _, err := openDatabase(ctx, a)
	if err != nil {
		return err
	}
	defer pool.Close()

	pub, closePub, err := newPublisher(ctx, a)
	if err != nil {
		return err
	}
	defer closePub()

	up := uploader.New(blobs, store, pub, a.cfg.PubSub.TopicName, a.cfg.Storage.Prefix, a.logger)
	summary, err := up.Run(ctx, kinds)
	if err != nil {
		return err
	}

	a.logger.Info("upload finished",
		zap.Int("files", summary.Files),
		zap.Any("records", summary.Records),
		zap.Int("failed_files", len(summary.Failed)),
		zap.Duration("took", summary.Took),
	)
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d staged files failed to upload", len(summary.Failed))
	}
	return nil
}
