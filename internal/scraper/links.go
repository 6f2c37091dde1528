package scraper

import (
	"context"
	"fmt"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

// LinkScraper maps collections to the products they contain. Collections fan
// out across a worker pool; each worker walks one collection's paginated
// product list, and a failing collection never sinks its siblings.
type LinkScraper struct {
	engine      *Engine
	collections *CollectionScraper
}

// NewLinkScraper builds the collection-product link scraper.
func NewLinkScraper(engine *Engine) *LinkScraper {
	return &LinkScraper{
		engine:      engine,
		collections: NewCollectionScraper(engine),
	}
}

// Kind identifies the records this scraper emits.
func (s *LinkScraper) Kind() catalog.EntityKind { return catalog.KindCollectionProduct }

// ScrapeSingle enumerates the shop's collections and resolves each one's
// product membership.
func (s *LinkScraper) ScrapeSingle(ctx context.Context, target catalog.ShopTarget) ([]catalog.CollectionProduct, error) {
	collections, err := s.collections.ScrapeSingle(ctx, target)
	if err != nil {
		return nil, err
	}

	links := FanOut(ctx, s.engine.cfg.CollectionWorkers, collections,
		func(ctx context.Context, col catalog.Collection) ([]catalog.CollectionProduct, error) {
			return s.collectionLinks(ctx, target, col)
		}, s.engine.logger)

	metrics.TotalEntitiesScraped.WithLabelValues(string(s.Kind())).Add(float64(len(links)))
	return links, nil
}

func (s *LinkScraper) collectionLinks(ctx context.Context, target catalog.ShopTarget, col catalog.Collection) ([]catalog.CollectionProduct, error) {
	base := target.BaseURL()

	fetch := func(ctx context.Context, page int) ([]catalog.CollectionProduct, error) {
		var wire struct {
			Products []struct {
				ID int64 `json:"id"`
			} `json:"products"`
		}
		url := fmt.Sprintf("%s/collections/%s/products.json?limit=%d&page=%d",
			base, col.Handle, s.engine.cfg.PageSize, page)
		if err := s.engine.client.GetJSON(ctx, target.ID, url, &wire); err != nil {
			return nil, err
		}
		out := make([]catalog.CollectionProduct, 0, len(wire.Products))
		for _, p := range wire.Products {
			out = append(out, catalog.CollectionProduct{
				ShopID:       target.ID,
				CollectionID: col.ID,
				ProductID:    p.ID,
			})
		}
		return out, nil
	}

	links, err := FetchAllPages(ctx, s.engine.paginateConfig(), fetch, s.engine.logger)
	if err != nil {
		return links, fmt.Errorf("scrape products of collection %q: %w", col.Handle, err)
	}
	return links, nil
}
