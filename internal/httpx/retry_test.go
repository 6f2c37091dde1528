package httpx

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, 5*time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, time.Millisecond, 5*time.Millisecond)
	p.Retryable = func(err error) bool { return !errors.Is(err, errPermanent) }

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errPermanent
	})
	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

var errPermanent = errors.New("permanent")

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(2, time.Millisecond, 5*time.Millisecond)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("always failing")
	})
	assert.Error(t, err)
	// First call plus two retries.
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(10, 50*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldRetryClassification(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond, time.Millisecond)

	assert.False(t, p.ShouldRetry(nil, 0))
	assert.False(t, p.ShouldRetry(errors.New("x"), 3), "attempts exhausted")
	assert.False(t, p.ShouldRetry(context.Canceled, 0))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))

	var netErr net.Error = timeoutErr{}
	assert.True(t, p.ShouldRetry(netErr, 0), "net timeouts are retryable")
	assert.True(t, p.ShouldRetry(errors.New("other"), 0))
}

func TestBackoffIsBoundedAndGrows(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond, time.Second)
	for attempt := 0; attempt < 6; attempt++ {
		b := p.Backoff(attempt)
		assert.Greater(t, b, time.Duration(0))
		assert.LessOrEqual(t, b, time.Second)
	}
	// The deterministic half of the backoff doubles per attempt.
	assert.GreaterOrEqual(t, p.Backoff(3), 100*time.Millisecond*8/2)
}
