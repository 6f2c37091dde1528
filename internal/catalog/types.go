// Package catalog defines core types shared across subsystems.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// EntityKind identifies one of the four record kinds produced by scraping.
type EntityKind string

// Entity kinds embedded in batch file paths and summaries.
const (
	KindShop              EntityKind = "shops"
	KindCollection        EntityKind = "collections"
	KindProduct           EntityKind = "products"
	KindCollectionProduct EntityKind = "collection_products"
)

// ShopTarget is one catalog origin to scrape, loaded once per run.
type ShopTarget struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
}

// BaseURL returns the normalized origin: scheme added if missing, trailing
// slashes stripped.
func (t ShopTarget) BaseURL() string {
	u := strings.TrimRight(strings.TrimSpace(t.URL), "/")
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// Shop is the per-origin record produced by the shop scraper.
type Shop struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name,omitempty"`
	Category  string    `json:"category,omitempty"`
	Valid     bool      `json:"valid"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Collection is one storefront collection.
type Collection struct {
	ID            int64      `json:"id"`
	ShopID        int64      `json:"shop_id"`
	Handle        string     `json:"handle"`
	Title         string     `json:"title"`
	Description   string     `json:"body_html,omitempty"`
	ProductsCount int        `json:"products_count,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	SourceHTML    bool       `json:"source_html,omitempty"`
}

// Variant is one purchasable option of a product.
type Variant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id,omitempty"`
	Title     string `json:"title"`
	SKU       string `json:"sku,omitempty"`
	Price     string `json:"price,omitempty"`
	Available bool   `json:"available"`
	Grams     int    `json:"grams,omitempty"`
}

// Image is one product image.
type Image struct {
	ID       int64  `json:"id"`
	Position int    `json:"position,omitempty"`
	Src      string `json:"src"`
}

// Product is one storefront product with its nested variants and images.
type Product struct {
	ID          int64      `json:"id"`
	ShopID      int64      `json:"shop_id"`
	Handle      string     `json:"handle"`
	Title       string     `json:"title"`
	BodyHTML    string     `json:"body_html,omitempty"`
	Vendor      string     `json:"vendor,omitempty"`
	ProductType string     `json:"product_type,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Variants    []Variant  `json:"variants,omitempty"`
	Images      []Image    `json:"images,omitempty"`
}

// CollectionProduct links one product to one collection within a shop.
type CollectionProduct struct {
	ShopID       int64 `json:"shop_id"`
	CollectionID int64 `json:"collection_id"`
	ProductID    int64 `json:"product_id"`
}

// SizeGroup is a canonical garment-size bucket that variant titles are
// matched against.
type SizeGroup struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// LoadTargets reads the shop target list from a JSON file. Targets without a
// URL are rejected; duplicate ids keep the first occurrence.
func LoadTargets(path string) ([]ShopTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var targets []ShopTarget
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	seen := make(map[int64]struct{}, len(targets))
	out := make([]ShopTarget, 0, len(targets))
	for i, t := range targets {
		if t.BaseURL() == "" {
			return nil, fmt.Errorf("target %d has no url", i)
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// FilterTargets keeps targets whose id appears in ids, or whose URL contains
// the urlSubstring when ids is empty. Both empty means no filtering.
func FilterTargets(targets []ShopTarget, ids []int64, urlSubstring string) []ShopTarget {
	if len(ids) == 0 && urlSubstring == "" {
		return targets
	}
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []ShopTarget
	for _, t := range targets {
		if len(ids) > 0 {
			if _, ok := wanted[t.ID]; ok {
				out = append(out, t)
			}
			continue
		}
		if strings.Contains(t.URL, urlSubstring) {
			out = append(out, t)
		}
	}
	return out
}
