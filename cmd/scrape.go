package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/httpx"
	"github.com/storefrontlab/catalog-crawler/internal/ratelimit"
	"github.com/storefrontlab/catalog-crawler/internal/scraper"
)

func newScrapeCmd() *cobra.Command {
	var (
		entities []string
		shopIDs  []int64
		shopURL  string
		noRobots bool
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape storefront catalogs into staged batch files",
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
			if err := runScrape(ctx, a, kinds, shopIDs, shopURL, noRobots, noVerify); err != nil {
				a.logger.Error("scrape failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&entities, "entities", nil,
		"entity kinds to scrape (default: shops,collections,products,collection_products)")
	cmd.Flags().Int64SliceVar(&shopIDs, "shop-ids", nil, "restrict the run to these shop ids")
	cmd.Flags().StringVar(&shopURL, "shop-url", "", "restrict the run to shops whose URL contains this substring")
	cmd.Flags().BoolVar(&noRobots, "no-robots", false, "skip robots.txt checks for this run")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip storefront verification for this run")
	return cmd
}

func runScrape(ctx context.Context, a *app, kinds []catalog.EntityKind, shopIDs []int64, shopURL string, noRobots, noVerify bool) error {
	targets, err := loadTargets(a, shopIDs, shopURL)
	if err != nil {
		return err
	}

	blobs, closeBlobs, err := newBlobStore(ctx, a)
	if err != nil {
		return err
	}
	defer closeBlobs()

	pool := httpx.NewPool(httpx.PoolConfig{
		UserAgent: a.cfg.Scraper.UserAgent,
		Timeout:   a.cfg.RequestTimeout(),
	})
	defer pool.CloseIdleConnections()

	rates := ratelimit.New(ratelimit.Config{
		BaseDelay: a.cfg.BaseDelay(),
		MaxDelay:  a.cfg.MaxDelay(),
	})

	var robots *httpx.RobotsGate
	if a.cfg.Scraper.RespectRobots && !noRobots {
		robots = httpx.NewRobotsGate(pool, a.cfg.Scraper.UserAgent)
	}

	client := scraper.NewClient(pool, rates, robots, a.logger)

	var verifier *scraper.Verifier
	if !noVerify {
		verdicts := cache.New(blobs, "verification")
		ttl := time.Duration(a.cfg.Scraper.VerificationTTLDays) * 24 * time.Hour
		verifier = scraper.NewVerifier(client, verdicts, ttl, a.logger)
	}

	fallback := scraper.NewHTMLFallback(a.cfg.Scraper.UserAgent, a.cfg.RequestTimeout(), a.logger)

	engine := scraper.NewEngine(client, verifier, fallback, scraper.EngineConfig{
		PageSize:           a.cfg.Scraper.PageSize,
		MaxPages:           a.cfg.Scraper.MaxPages,
		EmptyPageThreshold: a.cfg.Scraper.EmptyPageThreshold,
		PageWorkers:        a.cfg.Scraper.PageWorkers,
		CollectionWorkers:  a.cfg.Scraper.CollectionWorkers,
	}, a.logger)

	sched := scraper.NewScheduler(time.Duration(a.cfg.Scraper.InterShopDelaySec)*time.Second, a.logger)
	sink := scraper.NewSink(blobs, a.cfg.Storage.Prefix, a.logger)

	a.logger.Info("scrape starting",
		zap.Int("shops", len(targets)),
		zap.Int("entities", len(kinds)),
	)

	failed := 0
	for _, kind := range kinds {
		var failures map[int64]error
		switch kind {
		case catalog.KindShop:
			failures, err = scrapeKind(ctx, sched, sink, targets, kind, scraper.NewShopScraper(engine).ScrapeSingle)
		case catalog.KindCollection:
			failures, err = scrapeKind(ctx, sched, sink, targets, kind, scraper.NewCollectionScraper(engine).ScrapeSingle)
		case catalog.KindProduct:
			failures, err = scrapeKind(ctx, sched, sink, targets, kind, scraper.NewProductScraper(engine).ScrapeSingle)
		case catalog.KindCollectionProduct:
			failures, err = scrapeKind(ctx, sched, sink, targets, kind, scraper.NewLinkScraper(engine).ScrapeSingle)
		}
		if err != nil {
			return err
		}
		for shopID, shopErr := range failures {
			failed++
			a.logger.Warn("shop scrape failed",
				zap.String("kind", string(kind)),
				zap.Int64("shop_id", shopID),
				zap.Error(shopErr),
			)
		}
	}

	a.logger.Info("scrape finished", zap.Int("failed_shops", failed))
	if failed == len(targets)*len(kinds) {
		return fmt.Errorf("every shop failed to scrape")
	}
	return nil
}

// scrapeKind runs one entity scraper across all targets and stages the
// per-shop batches.
func scrapeKind[T any](ctx context.Context, sched *scraper.Scheduler, sink *scraper.Sink, targets []catalog.ShopTarget, kind catalog.EntityKind, scrape func(context.Context, catalog.ShopTarget) ([]T, error)) (map[int64]error, error) {
	results, failures := scraper.ScrapeMultiple(ctx, sched, targets, scrape)
	for shopID, items := range results {
		if _, err := scraper.WriteBatch(ctx, sink, shopID, kind, items); err != nil {
			return failures, fmt.Errorf("stage %s batch for shop %d: %w", kind, shopID, err)
		}
	}
	return failures, nil
}
