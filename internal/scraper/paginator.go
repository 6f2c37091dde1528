package scraper

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/storefrontlab/catalog-crawler/internal/metrics"
)

// PageFunc fetches one page (1-based) of a paginated collection and returns
// its items. Implementations signal throttling and parse failures with the
// client sentinels.
type PageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// PaginateConfig bounds one pagination walk.
type PaginateConfig struct {
	// Workers is the intra-shop page concurrency (clamped to [1, 5]).
	Workers int
	// MaxPages is the hard page cap.
	MaxPages int
	// EmptyPageThreshold stops the walk after this many consecutive empty pages.
	EmptyPageThreshold int
	// ThrottleRetries bounds how often a single throttled page is resubmitted.
	ThrottleRetries int
}

func (c PaginateConfig) normalized() PaginateConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Workers > 5 {
		c.Workers = 5
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 200
	}
	if c.EmptyPageThreshold <= 0 {
		c.EmptyPageThreshold = 2
	}
	if c.ThrottleRetries <= 0 {
		c.ThrottleRetries = 3
	}
	return c
}

type pageResult[T any] struct {
	items []T
	err   error
}

// FetchAllPages walks a paginated resource until the page cap, an
// unrecoverable error, or a run of empty pages. Pages are fetched in short
// batches of cfg.Workers; each batch is fully drained and evaluated in page
// order, so the shared empty-page counter is immune to completion reordering.
// Throttled pages are resubmitted with the next batch rather than counted as
// empty, and the empty-run stop waits until no throttled page is pending.
// Malformed and temporarily unavailable pages count as empty; only genuinely
// unrecoverable errors abort, returning the items collected so far alongside
// the error.
func FetchAllPages[T any](ctx context.Context, cfg PaginateConfig, fetch PageFunc[T], logger *zap.Logger) ([]T, error) {
	cfg = cfg.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	var items []T
	emptyRun := 0
	attempts := make(map[int]int)
	var pending []int
	next := 1

	for {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		batch := append([]int(nil), pending...)
		pending = pending[:0]
		for len(batch) < cfg.Workers && next <= cfg.MaxPages && emptyRun < cfg.EmptyPageThreshold {
			batch = append(batch, next)
			next++
		}
		if len(batch) == 0 {
			return items, nil
		}

		results := fetchBatch(ctx, batch, fetch)
		sort.Ints(batch)

		var abortErr error
		for _, page := range batch {
			res := results[page]
			switch {
			case res.err == nil:
				if len(res.items) == 0 {
					emptyRun++
					continue
				}
				emptyRun = 0
				items = append(items, res.items...)
				metrics.TotalPagesFetched.Inc()
			case errors.Is(res.err, ErrMalformed), errors.Is(res.err, ErrUnavailable):
				emptyRun++
			case errors.Is(res.err, ErrThrottled):
				attempts[page]++
				if attempts[page] <= cfg.ThrottleRetries {
					pending = append(pending, page)
					continue
				}
				logger.Warn("page still throttled after retries", zap.Int("page", page))
				abortErr = res.err
			default:
				abortErr = res.err
			}
		}

		switch {
		case abortErr != nil:
			return items, abortErr
		case emptyRun >= cfg.EmptyPageThreshold && len(pending) == 0:
			return items, nil
		case len(pending) == 0 && next > cfg.MaxPages:
			return items, nil
		}
	}
}

func fetchBatch[T any](ctx context.Context, pages []int, fetch PageFunc[T]) map[int]pageResult[T] {
	results := make(map[int]pageResult[T], len(pages))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, page := range pages {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			items, err := fetch(ctx, p)
			mu.Lock()
			results[p] = pageResult[T]{items: items, err: err}
			mu.Unlock()
		}(page)
	}
	wg.Wait()
	return results
}
