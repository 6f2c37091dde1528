package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

// ShopScraper produces one Shop record per target: the verification verdict
// plus whatever identity the storefront's shop endpoint exposes.
type ShopScraper struct {
	engine *Engine
}

// NewShopScraper builds the shop scraper on the shared engine.
func NewShopScraper(engine *Engine) *ShopScraper {
	return &ShopScraper{engine: engine}
}

// Kind identifies the records this scraper emits.
func (s *ShopScraper) Kind() catalog.EntityKind { return catalog.KindShop }

// ScrapeSingle verifies the target and assembles its Shop record. Unlike the
// catalog scrapers, an invalid shop is still a result here: the record's
// Valid flag carries the verdict downstream.
func (s *ShopScraper) ScrapeSingle(ctx context.Context, target catalog.ShopTarget) ([]catalog.Shop, error) {
	base := target.BaseURL()
	valid := true
	if s.engine.verifier != nil {
		ok, err := s.engine.verifier.Verify(ctx, target)
		if err != nil {
			return nil, err
		}
		valid = ok
	}

	shop := catalog.Shop{
		ID:        target.ID,
		URL:       base,
		Category:  target.Category,
		Valid:     valid,
		ScrapedAt: time.Now().UTC(),
	}
	if valid {
		shop.Name = s.fetchName(ctx, target.ID, base)
	}

	metrics.TotalEntitiesScraped.WithLabelValues(string(s.Kind())).Inc()
	return []catalog.Shop{shop}, nil
}

// fetchName asks the shop endpoint for a display name. Best effort: most
// storefronts gate /shop.json, so a failure just leaves the name empty.
func (s *ShopScraper) fetchName(ctx context.Context, shopID int64, base string) string {
	var wire struct {
		Shop struct {
			Name string `json:"name"`
		} `json:"shop"`
	}
	if err := s.engine.client.GetJSON(ctx, shopID, base+"/shop.json", &wire); err != nil {
		s.engine.logger.Debug("shop name lookup failed",
			zap.Int64("shop_id", shopID),
			zap.Error(err),
		)
		return ""
	}
	return wire.Shop.Name
}
