package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the full pipeline: scrape, upload, process, size-groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			kinds, err := parseKinds(nil)
			if err != nil {
				return err
			}

			stages := []struct {
				name string
				run  func() error
			}{
				{"scrape", func() error { return runScrape(ctx, a, kinds, nil, "", false, false) }},
				{"upload", func() error { return runUpload(ctx, a, kinds) }},
				{"process", func() error { return runProcess(ctx, a, false) }},
				{"size-groups", func() error { return runSizeGroups(ctx, a, false) }},
			}
			for _, stage := range stages {
				a.logger.Info("pipeline stage starting", zap.String("stage", stage.name))
				if err := stage.run(); err != nil {
					a.logger.Error("pipeline stage failed",
						zap.String("stage", stage.name),
						zap.Error(err),
					)
					return err
				}
			}
			a.logger.Info("pipeline finished")
			return nil
		},
	}
	return cmd
}
