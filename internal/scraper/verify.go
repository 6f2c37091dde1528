package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

// Probe endpoints tried in order when verifying a storefront.
var verificationPaths = []string{"/products.json", "/shop.json", "/api/shop", "/"}

// Body fragments that identify the storefront platform regardless of theme.
var platformMarkers = [][]byte{
	[]byte("cdn.shopify.com"),
	[]byte("Shopify.theme"),
	[]byte("shopify-digital-wallet"),
}

type verificationRecord struct {
	IsValid bool `json:"is_valid"`
}

// Verifier decides whether a base URL is a supported storefront before the
// collection and product scrapers spend requests on it. Verdicts are cached
// with a TTL so repeated runs skip the probe chain entirely.
type Verifier struct {
	client *Client
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewVerifier wires the probe client and the verdict cache.
func NewVerifier(client *Client, verdicts *cache.Cache, ttl time.Duration, logger *zap.Logger) *Verifier {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{client: client, cache: verdicts, ttl: ttl, logger: logger}
}

// Verify reports whether the target is a scrapable storefront. A fresh cache
// entry short-circuits all probe traffic.
func (v *Verifier) Verify(ctx context.Context, target catalog.ShopTarget) (bool, error) {
	base := target.BaseURL()

	var rec verificationRecord
	if v.cache != nil {
		hit, err := v.cache.Get(ctx, base, &rec)
		if err != nil {
			return false, err
		}
		if hit {
			return rec.IsValid, nil
		}
	}

	rec.IsValid = v.probe(ctx, target.ID, base)
	if v.cache != nil {
		if err := v.cache.Put(ctx, base, rec, v.ttl); err != nil {
			v.logger.Warn("persist verification verdict failed",
				zap.String("base_url", base),
				zap.Error(err),
			)
		}
	}
	return rec.IsValid, nil
}

func (v *Verifier) probe(ctx context.Context, shopID int64, base string) bool {
	for _, path := range verificationPaths {
		body, header, err := v.client.Get(ctx, shopID, base+path)
		if isPlatformHeader(header) {
			return true
		}
		if err != nil {
			v.logger.Debug("verification probe failed",
				zap.String("base_url", base),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		if hasStorefrontJSONKey(body) {
			return true
		}
		if hasPlatformMarker(body) {
			return true
		}
	}
	return false
}

// isPlatformHeader looks for platform-identifying response headers, which
// storefronts send even on error statuses.
func isPlatformHeader(h http.Header) bool {
	if h == nil {
		return false
	}
	for key := range h {
		if strings.Contains(strings.ToLower(key), "shopify") || strings.EqualFold(key, "X-Shopid") {
			return true
		}
	}
	return false
}

func hasStorefrontJSONKey(body []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	_, hasProducts := doc["products"]
	_, hasShop := doc["shop"]
	return hasProducts || hasShop
}

func hasPlatformMarker(body []byte) bool {
	for _, marker := range platformMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}
