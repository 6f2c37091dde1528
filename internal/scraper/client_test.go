package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMapsServerErrorToUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient()
	_, _, err := c.Get(context.Background(), 1, srv.URL+"/products.json")

	require.ErrorIs(t, err, ErrUnavailable)
	assert.Positive(t, c.rates.ErrorCount(1), "the 5xx must still feed the rate controller")
}

func TestClientMapsTransportErrorToUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // nothing is listening anymore

	c := testClient()
	_, _, err := c.Get(context.Background(), 2, srv.URL+"/products.json")

	require.ErrorIs(t, err, ErrUnavailable)
	assert.Positive(t, c.rates.ErrorCount(2))
}

func TestClientClientErrorIsNotUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := testClient()
	_, _, err := c.Get(context.Background(), 3, srv.URL+"/products.json")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrThrottled)
}

func TestClientThrottledSentinelOn429(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient()
	_, _, err := c.Get(context.Background(), 4, srv.URL+"/products.json")

	require.ErrorIs(t, err, ErrThrottled)
}
