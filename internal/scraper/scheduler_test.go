package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

func TestEachShopVisitsInOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(0, nil)
	targets := []catalog.ShopTarget{
		{ID: 1, URL: "https://a.example"},
		{ID: 2, URL: "https://b.example"},
		{ID: 3, URL: "https://c.example"},
	}
	boom := errors.New("down")

	var visited []int64
	failures := sched.EachShop(context.Background(), targets, func(_ context.Context, target catalog.ShopTarget) error {
		visited = append(visited, target.ID)
		if target.ID == 2 {
			return boom
		}
		return nil
	})

	assert.Equal(t, []int64{1, 2, 3}, visited, "a failing shop must not stop the walk")
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[2], boom)
}

func TestEachShopStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	targets := []catalog.ShopTarget{
		{ID: 1, URL: "https://a.example"},
		{ID: 2, URL: "https://b.example"},
	}

	var visited int
	failures := sched.EachShop(ctx, targets, func(context.Context, catalog.ShopTarget) error {
		visited++
		cancel()
		return nil
	})

	assert.Equal(t, 1, visited)
	assert.Len(t, failures, 1)
}

func TestFanOutConcatenatesAndSkipsFailures(t *testing.T) {
	t.Parallel()

	inputs := []int{1, 2, 3, 4}
	out := FanOut(context.Background(), 3, inputs, func(_ context.Context, n int) ([]int, error) {
		if n == 3 {
			return nil, errors.New("one bad input")
		}
		return []int{n * 10, n*10 + 1}, nil
	}, nil)

	assert.ElementsMatch(t, []int{10, 11, 20, 21, 40, 41}, out)
}

func TestFanOutBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const workers = 2
	var mu sync.Mutex
	active, peak := 0, 0

	inputs := make([]int, 16)
	FanOut(context.Background(), workers, inputs, func(_ context.Context, n int) ([]int, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		defer func() {
			mu.Lock()
			active--
			mu.Unlock()
		}()
		return []int{n}, nil
	}, nil)

	assert.LessOrEqual(t, peak, workers)
}

func TestFanOutEmptyInput(t *testing.T) {
	t.Parallel()

	out := FanOut(context.Background(), 4, nil, func(_ context.Context, n int) ([]int, error) {
		return []int{n}, nil
	}, nil)

	assert.Empty(t, out)
}
