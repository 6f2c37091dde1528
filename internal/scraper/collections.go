package scraper

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

// CollectionScraper walks a shop's paginated collections endpoint, falling
// back to HTML extraction when the API exposes nothing.
type CollectionScraper struct {
	engine *Engine
}

// NewCollectionScraper builds the collection scraper on the shared engine.
func NewCollectionScraper(engine *Engine) *CollectionScraper {
	return &CollectionScraper{engine: engine}
}

// Kind identifies the records this scraper emits.
func (s *CollectionScraper) Kind() catalog.EntityKind { return catalog.KindCollection }

// ScrapeSingle fetches every collection of one verified shop.
func (s *CollectionScraper) ScrapeSingle(ctx context.Context, target catalog.ShopTarget) ([]catalog.Collection, error) {
	if err := s.engine.requireStorefront(ctx, target); err != nil {
		return nil, err
	}
	base := target.BaseURL()

	fetch := func(ctx context.Context, page int) ([]catalog.Collection, error) {
		var wire struct {
			Collections []catalog.Collection `json:"collections"`
		}
		url := fmt.Sprintf("%s/collections.json?limit=%d&page=%d", base, s.engine.cfg.PageSize, page)
		if err := s.engine.client.GetJSON(ctx, target.ID, url, &wire); err != nil {
			return nil, err
		}
		for i := range wire.Collections {
			wire.Collections[i].ShopID = target.ID
		}
		return wire.Collections, nil
	}

	collections, err := FetchAllPages(ctx, s.engine.paginateConfig(), fetch, s.engine.logger)
	if err != nil {
		return collections, fmt.Errorf("scrape collections of shop %d: %w", target.ID, err)
	}

	if len(collections) == 0 && s.engine.fallback != nil {
		collections, err = s.engine.fallback.ExtractCollections(ctx, target)
		if err != nil {
			s.engine.logger.Warn("html collection fallback failed",
				zap.Int64("shop_id", target.ID),
				zap.Error(err),
			)
			collections = nil
		}
	}

	metrics.TotalEntitiesScraped.WithLabelValues(string(s.Kind())).Add(float64(len(collections)))
	return collections, nil
}
