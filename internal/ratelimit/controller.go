// Package ratelimit implements the adaptive per-shop delay controller that
// paces every outbound storefront request.
package ratelimit

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	defaultRetryAfter = 5 * time.Second
	jitterRange       = 200 * time.Millisecond

	backoffGrowth = 1.5
	successDecay  = 0.9
)

// Config bounds the controller. Delays always stay within [BaseDelay, MaxDelay].
type Config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Outcome describes one finished request attempt against a shop.
type Outcome struct {
	StatusCode int
	RetryAfter string
	Err        error
}

// Throttled reports whether the attempt hit an explicit rate limit.
func (o Outcome) Throttled() bool {
	return o.StatusCode == http.StatusTooManyRequests
}

// Failed reports whether the attempt should count as a server/transport failure.
func (o Outcome) Failed() bool {
	return o.Err != nil || o.StatusCode >= http.StatusInternalServerError
}

type shopState struct {
	mu         sync.Mutex
	delay      time.Duration
	errorCount int
}

// Controller tracks one adaptive delay per shop id. Safe for concurrent use
// by all workers of all shops; adaptation for one shop never throttles
// another.
type Controller struct {
	mu     sync.Mutex
	shops  map[int64]*shopState
	base   time.Duration
	max    time.Duration
	jitter func() time.Duration
}

// New builds a Controller. Zero config values fall back to 500ms/60s.
func New(cfg Config) *Controller {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < base {
		maxDelay = 60 * time.Second
	}
	return &Controller{
		shops: make(map[int64]*shopState),
		base:  base,
		max:   maxDelay,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(2*jitterRange))) - jitterRange
		},
	}
}

// WithJitter overrides the jitter source, for tests.
func (c *Controller) WithJitter(fn func() time.Duration) *Controller {
	c.jitter = fn
	return c
}

// DelayFor returns the delay a caller must sleep before (or after) its next
// request to the shop, with fresh jitter applied.
func (c *Controller) DelayFor(shopID int64) time.Duration {
	s := c.state(shopID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.clamp(s.delay + c.jitter())
}

// RecordOutcome adapts the shop's delay from the observed outcome and returns
// the new delay. It never fails: malformed response metadata falls back to
// defaults.
func (c *Controller) RecordOutcome(shopID int64, o Outcome) time.Duration {
	s := c.state(shopID)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case o.Throttled():
		seed := parseRetryAfter(o.RetryAfter)
		backoff := seed << uint(min(s.errorCount, 16))
		if backoff > c.max || backoff <= 0 {
			backoff = c.max
		}
		s.delay = backoff
		s.errorCount++
	case o.Failed():
		s.delay = time.Duration(float64(s.delay) * backoffGrowth)
		if s.delay > c.max {
			s.delay = c.max
		}
		s.errorCount++
	default:
		s.delay = time.Duration(float64(s.delay) * successDecay)
		if s.delay < c.base {
			s.delay = c.base
		}
		if s.errorCount > 0 {
			s.errorCount--
		}
	}

	// Jitter is applied to the returned value only; persisting it would let
	// the decay multiplier compound prior jitter into the policy delay.
	s.delay = c.clamp(s.delay)
	return c.clamp(s.delay + c.jitter())
}

// ErrorCount exposes the consecutive-failure counter for logging and tests.
func (c *Controller) ErrorCount(shopID int64) int {
	s := c.state(shopID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

func (c *Controller) state(shopID int64) *shopState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.shops[shopID]
	if !ok {
		s = &shopState{delay: c.base}
		c.shops[shopID] = s
	}
	return s
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	if d < c.base {
		return c.base
	}
	if d > c.max {
		return c.max
	}
	return d
}

// parseRetryAfter handles the delta-seconds form of the Retry-After header.
// Anything else (absent, HTTP-date, garbage) falls back to the default seed.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
