package scraper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

// Scheduler applies the run's concurrency policy: shops are visited
// sequentially with a fixed pacing delay between them, while sub-resources
// within a shop fan out across bounded worker pools.
type Scheduler struct {
	pacer  *rate.Limiter
	logger *zap.Logger
}

// NewScheduler builds a scheduler with the given inter-shop delay.
func NewScheduler(interShopDelay time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	pacer := rate.NewLimiter(rate.Inf, 1)
	if interShopDelay > 0 {
		pacer = rate.NewLimiter(rate.Every(interShopDelay), 1)
	}
	return &Scheduler{pacer: pacer, logger: logger}
}

// EachShop runs fn once per target, in order, pacing between shops. A failing
// shop is logged and recorded; it never aborts the remaining targets. The
// returned map holds the error for each failed shop id.
func (s *Scheduler) EachShop(ctx context.Context, targets []catalog.ShopTarget, fn func(context.Context, catalog.ShopTarget) error) map[int64]error {
	failures := make(map[int64]error)
	for _, target := range targets {
		if err := s.pacer.Wait(ctx); err != nil {
			failures[target.ID] = err
			return failures
		}
		if err := fn(ctx, target); err != nil {
			s.logger.Warn("shop scrape failed",
				zap.Int64("shop_id", target.ID),
				zap.String("url", target.URL),
				zap.Error(err),
			)
			failures[target.ID] = err
		}
	}
	return failures
}

// FanOut runs fn for every input on a bounded worker pool and concatenates
// the results. Per-input failures are logged and skipped, so one bad
// sub-resource cannot sink its siblings. Output order is completion order.
func FanOut[T, R any](ctx context.Context, workers int, inputs []T, fn func(context.Context, T) ([]R, error), logger *zap.Logger) []R {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}
	if len(inputs) == 0 {
		return nil
	}

	jobs := make(chan T)
	var mu sync.Mutex
	var out []R
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range jobs {
				items, err := fn(ctx, in)
				if err != nil {
					logger.Warn("sub-resource fetch failed", zap.Error(err))
					continue
				}
				mu.Lock()
				out = append(out, items...)
				mu.Unlock()
			}
		}()
	}

	for _, in := range inputs {
		select {
		case jobs <- in:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return out
		}
	}
	close(jobs)
	wg.Wait()
	return out
}
