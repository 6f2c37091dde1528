// Package scraper implements the concurrent, rate-limit-aware storefront
// scraping engine: a paginated JSON fetch primitive, a page/collection
// scheduler, the four entity scrapers, and the shop verification protocol.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/httpx"
	"github.com/storefrontlab/catalog-crawler/internal/metrics"
	"github.com/storefrontlab/catalog-crawler/internal/ratelimit"
)

// Sentinel results of a single page fetch. The paginator maps them onto its
// termination policy.
var (
	// ErrThrottled marks a 429: the page was not fetched and may be resubmitted.
	ErrThrottled = errors.New("throttled by storefront")
	// ErrMalformed marks a 200 whose body did not parse; treated as an empty page.
	ErrMalformed = errors.New("malformed page body")
	// ErrUnavailable marks a 5xx or transport failure. The rate controller has
	// already backed off; the page counts as empty so the walk continues.
	ErrUnavailable = errors.New("storefront temporarily unavailable")
	// ErrBlocked marks a URL the robots policy forbids.
	ErrBlocked = errors.New("blocked by robots policy")
)

// maxPageBody caps how much of a catalog page is read.
const maxPageBody = 20 * 1024 * 1024

// Client issues rate-paced JSON requests on behalf of one run. It owns no
// global state; every scraper of the run shares the same instance.
type Client struct {
	pool   *httpx.Pool
	rates  *ratelimit.Controller
	robots *httpx.RobotsGate
	logger *zap.Logger
}

// NewClient wires the session pool, rate controller, and optional robots gate.
func NewClient(pool *httpx.Pool, rates *ratelimit.Controller, robots *httpx.RobotsGate, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{pool: pool, rates: rates, robots: robots, logger: logger}
}

// GetJSON sleeps the shop's adaptive delay, fetches url, feeds the outcome
// back into the rate controller, and decodes the body into v.
func (c *Client) GetJSON(ctx context.Context, shopID int64, url string, v any) error {
	body, _, err := c.get(ctx, shopID, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.logger.Warn("malformed json page",
			zap.Int64("shop_id", shopID),
			zap.String("url", url),
			zap.Error(err),
		)
		return ErrMalformed
	}
	return nil
}

// Get fetches url raw. Used by verification probes and the HTML fallback,
// which need bodies and headers rather than decoded JSON.
func (c *Client) Get(ctx context.Context, shopID int64, url string) ([]byte, http.Header, error) {
	return c.get(ctx, shopID, url)
}

func (c *Client) get(ctx context.Context, shopID int64, url string) ([]byte, http.Header, error) {
	if c.robots != nil && !c.robots.Allowed(ctx, shopID, url) {
		return nil, nil, fmt.Errorf("%w: %s", ErrBlocked, url)
	}

	delay := c.rates.DelayFor(shopID)
	metrics.RateDelaySeconds.Observe(delay.Seconds())
	if err := httpx.SleepContext(ctx, delay); err != nil {
		return nil, nil, fmt.Errorf("rate delay: %w", err)
	}

	resp, err := c.pool.Get(ctx, shopID, url)
	if err != nil {
		c.rates.RecordOutcome(shopID, ratelimit.Outcome{Err: err})
		metrics.ObserveStatus("error")
		return nil, nil, fmt.Errorf("%w: fetch %s: %v", ErrUnavailable, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.rates.RecordOutcome(shopID, ratelimit.Outcome{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
	})
	metrics.ObserveStatus(metrics.StatusClass(resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.Header, fmt.Errorf("%w: %s", ErrThrottled, url)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, resp.Header, fmt.Errorf("%w: %s: status %d", ErrUnavailable, url, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, resp.Header, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		c.rates.RecordOutcome(shopID, ratelimit.Outcome{Err: err})
		return nil, resp.Header, fmt.Errorf("%w: read body of %s: %v", ErrUnavailable, url, err)
	}
	return body, resp.Header, nil
}
