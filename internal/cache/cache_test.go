package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlab/catalog-crawler/internal/cache"
	"github.com/storefrontlab/catalog-crawler/internal/storage/memory"
)

type record struct {
	Valid bool  `json:"valid"`
	Count int64 `json:"count"`
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c := cache.New(memory.NewBlobStore(), "verification")
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "https://shop.example.com", record{Valid: true, Count: 3}, time.Hour))

	var got record
	hit, err := c.Get(ctx, "https://shop.example.com", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, record{Valid: true, Count: 3}, got)
}

func TestCacheMiss(t *testing.T) {
	t.Parallel()

	c := cache.New(memory.NewBlobStore(), "verification")

	var got record
	hit, err := c.Get(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := cache.New(memory.NewBlobStore(), "verification").WithClock(clock)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "shop", record{Valid: true}, 7*24*time.Hour))

	var got record
	hit, err := c.Get(ctx, "shop", &got)
	require.NoError(t, err)
	assert.True(t, hit, "entry should be fresh inside the TTL window")

	now = now.Add(7*24*time.Hour + time.Minute)
	hit, err = c.Get(ctx, "shop", &got)
	require.NoError(t, err)
	assert.False(t, hit, "entry should be stale after the TTL window")
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := cache.New(memory.NewBlobStore(), "corpus").WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "taxonomy-d2-4", []string{"A > B"}, 0))

	now = now.Add(365 * 24 * time.Hour)
	var got []string
	hit, err := c.Get(ctx, "taxonomy-d2-4", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"A > B"}, got)
}

func TestCacheKeySanitization(t *testing.T) {
	t.Parallel()

	c := cache.New(memory.NewBlobStore(), "verification")
	ctx := context.Background()

	// Keys that collapse to the same safe form must still hit correctly for
	// the exact key used on Put.
	require.NoError(t, c.Put(ctx, "https://a.example.com/", record{Valid: true}, time.Hour))

	var got record
	hit, err := c.Get(ctx, "https://a.example.com/", &got)
	require.NoError(t, err)
	assert.True(t, hit)
}
