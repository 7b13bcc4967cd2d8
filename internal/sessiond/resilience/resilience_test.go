package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := newCircuitBreaker("test", CircuitBreakerConfig{
		ErrorThreshold:   2,
		Timeout:          time.Second,
		SuccessThreshold: 1,
	}, clock.Now)

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errBackend }), errBackend)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errBackend }), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerIgnoresCancelledCalls(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := newCircuitBreaker("test", CircuitBreakerConfig{
		ErrorThreshold:   2,
		Timeout:          time.Second,
		SuccessThreshold: 1,
	}, clock.Now)

	cancelled := fmt.Errorf("Get \"http://backend/api\": %w", context.Canceled)
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func() error { return cancelled }), context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	assert.ErrorIs(t, cb.Execute(ctx, func() error { return errBackend }), errBackend)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := newCircuitBreaker("test", CircuitBreakerConfig{
		ErrorThreshold:   1,
		Timeout:          time.Second,
		SuccessThreshold: 2,
	}, clock.Now)

	_ = cb.Execute(ctx, func() error { return errBackend })
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := newCircuitBreaker("test", CircuitBreakerConfig{
		ErrorThreshold:   1,
		Timeout:          time.Second,
		SuccessThreshold: 1,
	}, clock.Now)

	_ = cb.Execute(ctx, func() error { return errBackend })
	clock.Advance(2 * time.Second)
	_ = cb.Execute(ctx, func() error { return errBackend })

	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls int32
	r := NewRetry("test", fastRetry(3))

	err := r.Execute(context.Background(), func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errBackend
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	var calls int32
	r := NewRetry("test", fastRetry(2))

	err := r.Execute(context.Background(), func() error {
		atomic.AddInt32(&calls, 1)
		return errBackend
	})

	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetrySkipsNonRetryableErrors(t *testing.T) {
	var calls int32
	r := NewRetry("test", fastRetry(5))

	err := r.Execute(context.Background(), func() error {
		atomic.AddInt32(&calls, 1)
		return ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetry("test", RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, BackoffFactor: 1})

	err := r.Execute(ctx, func() error {
		cancel()
		return errBackend
	})

	assert.ErrorIs(t, err, ErrContextCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyRetriesOnlyWhenRetryable(t *testing.T) {
	p := NewPolicy("test", CircuitBreakerConfig{ErrorThreshold: 10, Timeout: time.Second, SuccessThreshold: 1}, fastRetry(3))

	var calls int32
	err := p.Execute(context.Background(), "post", false, func() error {
		atomic.AddInt32(&calls, 1)
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	err = p.Execute(context.Background(), "get", true, func() error {
		atomic.AddInt32(&calls, 1)
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, StateClosed, p.State())
}

func TestPolicyStopsRetryingWhenCircuitOpens(t *testing.T) {
	p := NewPolicy("test", CircuitBreakerConfig{ErrorThreshold: 2, Timeout: time.Hour, SuccessThreshold: 1}, fastRetry(5))

	var calls int32
	err := p.Execute(context.Background(), "get", true, func() error {
		atomic.AddInt32(&calls, 1)
		return errBackend
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, StateOpen, p.State())
}
