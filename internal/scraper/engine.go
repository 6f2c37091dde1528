package scraper

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

// ErrNotStorefront marks a target that failed the verification probe chain.
// The shop is skipped for the rest of the run, never retried within it.
var ErrNotStorefront = errors.New("target is not a supported storefront")

// EngineConfig carries the pagination and fan-out knobs shared by all entity
// scrapers.
type EngineConfig struct {
	PageSize           int
	MaxPages           int
	EmptyPageThreshold int
	PageWorkers        int
	CollectionWorkers  int
}

// Engine bundles the collaborators every entity scraper composes: the paced
// HTTP client, the verification gate, and the HTML fallback. One engine is
// built per run and shared across scrapers.
type Engine struct {
	client   *Client
	verifier *Verifier
	fallback CollectionFallback
	cfg      EngineConfig
	logger   *zap.Logger
}

// NewEngine builds the shared scraper engine. fallback may be nil to disable
// HTML collection extraction.
func NewEngine(client *Client, verifier *Verifier, fallback CollectionFallback, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 250
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client:   client,
		verifier: verifier,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
	}
}

func (e *Engine) paginateConfig() PaginateConfig {
	return PaginateConfig{
		Workers:            e.cfg.PageWorkers,
		MaxPages:           e.cfg.MaxPages,
		EmptyPageThreshold: e.cfg.EmptyPageThreshold,
	}
}

// requireStorefront gates the catalog scrapers on shop verification.
func (e *Engine) requireStorefront(ctx context.Context, target catalog.ShopTarget) error {
	if e.verifier == nil {
		return nil
	}
	ok, err := e.verifier.Verify(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotStorefront
	}
	return nil
}

// ScrapeMultiple applies the inter-shop policy to scrape, collecting results
// per shop id. A failing shop is recorded in the returned failure map and
// does not abort its siblings.
func ScrapeMultiple[T any](ctx context.Context, sched *Scheduler, targets []catalog.ShopTarget, scrape func(context.Context, catalog.ShopTarget) ([]T, error)) (map[int64][]T, map[int64]error) {
	out := make(map[int64][]T, len(targets))
	failures := sched.EachShop(ctx, targets, func(ctx context.Context, target catalog.ShopTarget) error {
		items, err := scrape(ctx, target)
		if err != nil {
			return err
		}
		out[target.ID] = items
		return nil
	})
	return out, failures
}
