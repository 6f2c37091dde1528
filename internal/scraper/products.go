package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

// tagList accepts both tag shapes storefronts emit: a JSON array of strings
// and a single comma-separated string.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*t = arr
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	var out []string
	for _, tag := range strings.Split(joined, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	*t = out
	return nil
}

type productWire struct {
	ID          int64             `json:"id"`
	Handle      string            `json:"handle"`
	Title       string            `json:"title"`
	BodyHTML    string            `json:"body_html"`
	Vendor      string            `json:"vendor"`
	ProductType string            `json:"product_type"`
	Tags        tagList           `json:"tags"`
	CreatedAt   *time.Time        `json:"created_at"`
	UpdatedAt   *time.Time        `json:"updated_at"`
	PublishedAt *time.Time        `json:"published_at"`
	Variants    []catalog.Variant `json:"variants"`
	Images      []catalog.Image   `json:"images"`
}

func (w productWire) toProduct(shopID int64) catalog.Product {
	return catalog.Product{
		ID:          w.ID,
		ShopID:      shopID,
		Handle:      w.Handle,
		Title:       w.Title,
		BodyHTML:    w.BodyHTML,
		Vendor:      w.Vendor,
		ProductType: w.ProductType,
		Tags:        w.Tags,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		PublishedAt: w.PublishedAt,
		Variants:    w.Variants,
		Images:      w.Images,
	}
}

// ProductScraper walks a shop's paginated products endpoint.
type ProductScraper struct {
	engine *Engine
}

// NewProductScraper builds the product scraper on the shared engine.
func NewProductScraper(engine *Engine) *ProductScraper {
	return &ProductScraper{engine: engine}
}

// Kind identifies the records this scraper emits.
func (s *ProductScraper) Kind() catalog.EntityKind { return catalog.KindProduct }

// ScrapeSingle fetches the full product list of one verified shop.
func (s *ProductScraper) ScrapeSingle(ctx context.Context, target catalog.ShopTarget) ([]catalog.Product, error) {
	if err := s.engine.requireStorefront(ctx, target); err != nil {
		return nil, err
	}
	base := target.BaseURL()

	fetch := func(ctx context.Context, page int) ([]catalog.Product, error) {
		var wire struct {
			Products []productWire `json:"products"`
		}
		url := fmt.Sprintf("%s/products.json?limit=%d&page=%d", base, s.engine.cfg.PageSize, page)
		if err := s.engine.client.GetJSON(ctx, target.ID, url, &wire); err != nil {
			return nil, err
		}
		out := make([]catalog.Product, 0, len(wire.Products))
		for _, p := range wire.Products {
			out = append(out, p.toProduct(target.ID))
		}
		return out, nil
	}

	products, err := FetchAllPages(ctx, s.engine.paginateConfig(), fetch, s.engine.logger)
	if err != nil {
		return products, fmt.Errorf("scrape products of shop %d: %w", target.ID, err)
	}

	metrics.TotalEntitiesScraped.WithLabelValues(string(s.Kind())).Add(float64(len(products)))
	return products, nil
}
