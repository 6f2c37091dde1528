// Package cmd wires the catalogcrawler CLI: db, scrape, upload, process,
// size-groups, and the all-in-one pipeline mode.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/config"
	"github.com/storefrontlab/catalog-crawler/internal/logging"
	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

var cfgFile string

// app bundles the run-scoped services every subcommand starts from.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

// loadApp reads configuration, builds the logger, and starts the metrics
// endpoint when enabled.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		metrics.NewServer(cfg.Metrics.Port, logger).Start(ctx)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "catalogcrawler",
		Short: "Scrapes storefront catalogs and classifies their products.",
		Long: `catalogcrawler walks Shopify storefront catalogs with adaptive per-shop
rate limiting, stages the results as JSON batch files, uploads them into a
relational backend, and runs resumable batch jobs that classify products
into a taxonomy and variants into size groups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (env vars with CATALOG_ prefix override)")

	root.AddCommand(
		newDBCmd(),
		newScrapeCmd(),
		newUploadCmd(),
		newProcessCmd(),
		newSizeGroupsCmd(),
		newAllCmd(),
	)
	return root
}

// Execute runs the CLI. Any fatal stage failure exits non-zero.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		// The subcommands already logged the details.
		os.Exit(1)
	}
}
