package ratelimit

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(base, max time.Duration) *Controller {
	return New(Config{BaseDelay: base, MaxDelay: max}).
		WithJitter(func() time.Duration { return 0 })
}

func TestDelayStartsAtBase(t *testing.T) {
	t.Parallel()

	c := newTestController(500*time.Millisecond, time.Minute)
	assert.Equal(t, 500*time.Millisecond, c.DelayFor(1))
}

func TestServerErrorsRampDelayMultiplicatively(t *testing.T) {
	t.Parallel()

	base := 500 * time.Millisecond
	c := newTestController(base, time.Minute)

	for n := 1; n <= 8; n++ {
		got := c.RecordOutcome(7, Outcome{StatusCode: 500})
		want := time.Duration(float64(base) * math.Pow(1.5, float64(n)))
		if want > time.Minute {
			want = time.Minute
		}
		assert.InDelta(t, float64(want), float64(got), float64(time.Millisecond),
			"delay after %d consecutive 5xx outcomes", n)
	}
	assert.Equal(t, 8, c.ErrorCount(7))
}

func TestTransportErrorCountsAsFailure(t *testing.T) {
	t.Parallel()

	base := time.Second
	c := newTestController(base, time.Minute)

	got := c.RecordOutcome(1, Outcome{Err: errors.New("dial timeout")})
	assert.Equal(t, time.Duration(float64(base)*1.5), got)
	assert.Equal(t, 1, c.ErrorCount(1))
}

func TestThrottleBackoffSeedsFromRetryAfter(t *testing.T) {
	t.Parallel()

	c := newTestController(500*time.Millisecond, 5*time.Minute)

	got := c.RecordOutcome(1, Outcome{StatusCode: 429, RetryAfter: "7"})
	assert.Equal(t, 7*time.Second, got)

	// Second consecutive 429 doubles the seed.
	got = c.RecordOutcome(1, Outcome{StatusCode: 429, RetryAfter: "7"})
	assert.Equal(t, 14*time.Second, got)
}

func TestThrottleBackoffDefaultsWithoutRetryAfter(t *testing.T) {
	t.Parallel()

	c := newTestController(500*time.Millisecond, 5*time.Minute)

	assert.Equal(t, 5*time.Second, c.RecordOutcome(1, Outcome{StatusCode: 429}))
	assert.Equal(t, 5*time.Second,
		c.RecordOutcome(2, Outcome{StatusCode: 429, RetryAfter: "Wed, 21 Oct 2026 07:28:00 GMT"}),
		"HTTP-date Retry-After falls back to the default seed")
}

func TestThrottleBackoffIsCapped(t *testing.T) {
	t.Parallel()

	c := newTestController(500*time.Millisecond, 10*time.Second)

	for i := 0; i < 12; i++ {
		got := c.RecordOutcome(1, Outcome{StatusCode: 429, RetryAfter: "30"})
		assert.LessOrEqual(t, got, 10*time.Second)
	}
}

func TestSuccessDecaysTowardBase(t *testing.T) {
	t.Parallel()

	base := 500 * time.Millisecond
	c := newTestController(base, time.Minute)

	// Ramp up first.
	for i := 0; i < 5; i++ {
		c.RecordOutcome(1, Outcome{StatusCode: 503})
	}
	before := c.DelayFor(1)

	got := c.RecordOutcome(1, Outcome{StatusCode: 200})
	assert.LessOrEqual(t, got, time.Duration(float64(before)*0.9)+time.Millisecond,
		"success must not raise the delay above 0.9x its prior value")
	assert.Equal(t, 4, c.ErrorCount(1))

	// Sustained success returns to the floor and the counter to zero.
	for i := 0; i < 50; i++ {
		got = c.RecordOutcome(1, Outcome{StatusCode: 200})
	}
	assert.Equal(t, base, got)
	assert.Equal(t, 0, c.ErrorCount(1))
}

func TestDelayBoundsHoldForAnyOutcomeSequence(t *testing.T) {
	t.Parallel()

	base := 200 * time.Millisecond
	maxDelay := 3 * time.Second
	c := New(Config{BaseDelay: base, MaxDelay: maxDelay})

	rng := rand.New(rand.NewSource(42))
	statuses := []int{200, 200, 429, 500, 503, 200, 0}
	for i := 0; i < 500; i++ {
		o := Outcome{StatusCode: statuses[rng.Intn(len(statuses))]}
		if o.StatusCode == 0 {
			o = Outcome{Err: errors.New("reset by peer")}
		}
		got := c.RecordOutcome(9, o)
		require.GreaterOrEqual(t, got, base)
		require.LessOrEqual(t, got, maxDelay)
	}
}

func TestShopsAreIsolated(t *testing.T) {
	t.Parallel()

	c := newTestController(500*time.Millisecond, time.Minute)

	for i := 0; i < 6; i++ {
		c.RecordOutcome(1, Outcome{StatusCode: 500})
	}
	assert.Greater(t, c.DelayFor(1), 2*time.Second)
	assert.Equal(t, 500*time.Millisecond, c.DelayFor(2),
		"a slow shop must not throttle its siblings")
}

func TestJitterNeverCompoundsIntoPolicyDelay(t *testing.T) {
	t.Parallel()

	base := time.Second
	c := New(Config{BaseDelay: base, MaxDelay: time.Minute}).
		WithJitter(func() time.Duration { return 200 * time.Millisecond })

	// At the floor, every success must return exactly base plus the jitter.
	// If jitter leaked into the stored delay, 0.9*(base+0.2s)+0.2s would
	// ratchet the result upward run over run.
	for i := 0; i < 50; i++ {
		assert.Equal(t, base+200*time.Millisecond, c.RecordOutcome(1, Outcome{StatusCode: 200}))
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	t.Parallel()

	base := time.Second
	c := New(Config{BaseDelay: base, MaxDelay: time.Minute})

	for i := 0; i < 200; i++ {
		got := c.RecordOutcome(1, Outcome{StatusCode: 200})
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+200*time.Millisecond)
	}
}
