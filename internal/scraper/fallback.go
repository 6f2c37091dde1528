package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

// CollectionFallback extracts collections from storefront HTML when the JSON
// API yields none. Implementations are best-effort detectors and may be
// swapped out as themes change.
type CollectionFallback interface {
	ExtractCollections(ctx context.Context, target catalog.ShopTarget) ([]catalog.Collection, error)
}

// HTMLFallback walks the /collections listing page and mines collection
// handles out of anchor hrefs. Records it emits carry synthetic negative ids
// and the SourceHTML flag so downstream consumers can tell them from
// API-sourced rows.
type HTMLFallback struct {
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewHTMLFallback builds the colly-backed extractor.
func NewHTMLFallback(userAgent string, timeout time.Duration, logger *zap.Logger) *HTMLFallback {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLFallback{userAgent: userAgent, timeout: timeout, logger: logger}
}

// ExtractCollections scrapes base/collections and returns the deduplicated
// collections referenced by the page.
func (f *HTMLFallback) ExtractCollections(ctx context.Context, target catalog.ShopTarget) ([]catalog.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := target.BaseURL()

	seen := make(map[string]catalog.Collection)
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		handle := collectionHandle(e.Attr("href"))
		if handle == "" {
			return
		}
		if _, dup := seen[handle]; dup {
			return
		}
		title := bestTitle(e.DOM)
		if title == "" {
			title = titleFromHandle(handle)
		}
		seen[handle] = catalog.Collection{
			ID:         syntheticCollectionID(handle),
			ShopID:     target.ID,
			Handle:     handle,
			Title:      title,
			SourceHTML: true,
		}
	})

	if err := c.Visit(base + "/collections"); err != nil {
		return nil, fmt.Errorf("fetch collections page of %s: %w", base, err)
	}
	c.Wait()

	out := make([]catalog.Collection, 0, len(seen))
	for _, col := range seen {
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	f.logger.Debug("html fallback extracted collections",
		zap.Int64("shop_id", target.ID),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// bestTitle prefers the theme's dedicated title node over the anchor's full
// text, which often includes prices and badges.
func bestTitle(sel *goquery.Selection) string {
	for _, q := range []string{".collection-title", ".card__heading", "span.title"} {
		if t := strings.TrimSpace(sel.Find(q).First().Text()); t != "" {
			return t
		}
	}
	return strings.TrimSpace(sel.Text())
}

// collectionHandle pulls the collection handle out of an href, or "" when the
// link is not a collection link worth keeping.
func collectionHandle(href string) string {
	idx := strings.Index(href, "/collections/")
	if idx < 0 {
		return ""
	}
	rest := href[idx+len("/collections/"):]
	for _, sep := range []string{"?", "#"} {
		if cut := strings.Index(rest, sep); cut >= 0 {
			rest = rest[:cut]
		}
	}
	handle := strings.Trim(rest, "/")
	if cut := strings.Index(handle, "/"); cut >= 0 {
		handle = handle[:cut]
	}
	if handle == "" || handle == "all" {
		return ""
	}
	return handle
}

// syntheticCollectionID derives a stable negative id from the handle so HTML
// records never collide with API-assigned ids.
func syntheticCollectionID(handle string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(handle))
	id := -int64(h.Sum64() & math.MaxInt64)
	if id == 0 {
		id = -1
	}
	return id
}

func titleFromHandle(handle string) string {
	words := strings.Split(strings.ReplaceAll(handle, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
