package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
	"github.com/storefrontlab/catalog-crawler/internal/catalog"
	"github.com/storefrontlab/catalog-crawler/internal/httpx"
	"github.com/storefrontlab/catalog-crawler/internal/ratelimit"
	"github.com/storefrontlab/catalog-crawler/internal/storage/memory"
)

func testClient() *Client {
	pool := httpx.NewPool(httpx.PoolConfig{UserAgent: "test-agent", Timeout: 5 * time.Second})
	rates := ratelimit.New(ratelimit.Config{
		BaseDelay: time.Millisecond,
		MaxDelay:  2 * time.Millisecond,
	}).WithJitter(func() time.Duration { return 0 })
	return NewClient(pool, rates, nil, nil)
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	verdicts := cache.New(memory.NewBlobStore(), "verification")
	return NewVerifier(testClient(), verdicts, 7*24*time.Hour, nil)
}

func TestVerifyAcceptsProductsJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/products.json" {
			_, _ = w.Write([]byte(`{"products":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	ok, err := v.Verify(context.Background(), catalog.ShopTarget{ID: 1, URL: srv.URL})

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyAcceptsPlatformHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Shopify-Stage", "production")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	ok, err := v.Verify(context.Background(), catalog.ShopTarget{ID: 2, URL: srv.URL})

	require.NoError(t, err)
	assert.True(t, ok, "platform headers count even on error statuses")
}

func TestVerifyAcceptsHTMLMarker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`<html><script src="https://cdn.shopify.com/s/x.js"></script></html>`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	ok, err := v.Verify(context.Background(), catalog.ShopTarget{ID: 3, URL: srv.URL})

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsPlainSite(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>just a blog</body></html>`))
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	ok, err := v.Verify(context.Background(), catalog.ShopTarget{ID: 4, URL: srv.URL})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyCachesVerdict(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/products.json" {
			_, _ = w.Write([]byte(`{"products":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	target := catalog.ShopTarget{ID: 5, URL: srv.URL}

	ok, err := v.Verify(context.Background(), target)
	require.NoError(t, err)
	require.True(t, ok)
	probed := hits.Load()
	require.Positive(t, probed)

	ok, err = v.Verify(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, probed, hits.Load(), "second verification within the TTL must not touch the network")
}

func TestVerifyNegativeVerdictCached(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`nothing to see`))
	}))
	defer srv.Close()

	v := newTestVerifier(t)
	target := catalog.ShopTarget{ID: 6, URL: srv.URL}

	ok, err := v.Verify(context.Background(), target)
	require.NoError(t, err)
	require.False(t, ok)
	probed := hits.Load()

	ok, err = v.Verify(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, probed, hits.Load())
}
