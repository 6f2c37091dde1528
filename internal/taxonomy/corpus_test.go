package taxonomy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
	"github.com/storefrontlab/catalog-crawler/internal/storage/memory"
)

func TestCleanPathsAppliesDepthWindow(t *testing.T) {
	t.Parallel()

	raw := []string{
		"Apparel",
		"Apparel > Shirts",
		"Apparel > Shirts > T-Shirts",
		"Apparel > Shirts > T-Shirts > Graphic > Vintage",
	}

	got := CleanPaths(raw, 2, 4)

	assert.Equal(t, []string{
		"Apparel > Shirts",
		"Apparel > Shirts > T-Shirts",
		"Apparel > Shirts > T-Shirts > Graphic",
	}, got, "too-shallow dropped, too-deep truncated")
}

func TestCleanPathsDeduplicatesAfterTruncation(t *testing.T) {
	t.Parallel()

	raw := []string{
		"Apparel > Shirts > T-Shirts > Graphic",
		"Apparel > Shirts > T-Shirts > Plain",
	}

	got := CleanPaths(raw, 2, 3)

	assert.Equal(t, []string{"Apparel > Shirts > T-Shirts"}, got)
}

func TestDepth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Depth("Apparel"))
	assert.Equal(t, 3, Depth("Apparel > Shirts > T-Shirts"))
}

func TestCorpusLoaderFetchesAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(
			"# Google_Product_Taxonomy_Version: 2021-09-21\n" +
				"Apparel\n" +
				"Apparel > Shirts\n" +
				"Apparel > Shirts > T-Shirts\n"))
	}))
	defer srv.Close()

	corpusCache := cache.New(memory.NewBlobStore(), "taxonomy")
	loader := NewCorpusLoader(srv.URL, srv.Client(), corpusCache, nil)

	paths, err := loader.Load(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apparel > Shirts", "Apparel > Shirts > T-Shirts"}, paths)
	require.Equal(t, int64(1), hits.Load())

	again, err := loader.Load(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, paths, again)
	assert.Equal(t, int64(1), hits.Load(), "second load is served from the cache")

	// A different depth window is a different cache key.
	_, err = loader.Load(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestCorpusLoaderErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	loader := NewCorpusLoader(srv.URL, srv.Client(), nil, nil)
	_, err := loader.Load(context.Background(), 2, 4)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
