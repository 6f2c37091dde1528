package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/storage/postgres"
)

func newDBCmd() *cobra.Command {
	var skipSeed bool

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Create the database schema and seed the size-group vocabulary",
		Long: `db bootstraps a fresh database: it creates every table and index the
crawler needs (idempotently, so re-running it is safe) and seeds the default
garment-size vocabulary, including the Unknown fallback group the size-group
job requires.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := runDB(ctx, a, !skipSeed); err != nil {
				a.logger.Error("database bootstrap failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipSeed, "skip-seed", false, "create the schema without seeding size groups")
	return cmd
}

func runDB(ctx context.Context, a *app, seed bool) error {
	pool, err := postgres.Connect(ctx, a.cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	a.logger.Info("database schema ensured")

	if seed {
		if err := postgres.SeedSizeGroups(ctx, pool, postgres.DefaultSizeGroupLabels); err != nil {
			return err
		}
		a.logger.Info("size-group vocabulary seeded",
			zap.Int("labels", len(postgres.DefaultSizeGroupLabels)))
	}
	return nil
}
