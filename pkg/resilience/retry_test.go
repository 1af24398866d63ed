package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestRetryWithNameSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithName(context.Background(), fastRetryConfig(3), func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return "done", nil
	}, "test.transient")

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 3, calls)
}

func TestRetryWithNameStopsOnNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")
	cfg := fastRetryConfig(5)
	cfg.RetryableChecker = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	_, err := RetryWithName(context.Background(), cfg, func(context.Context) (interface{}, error) {
		calls++
		return nil, permanent
	}, "test.permanent")

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithNameHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithName(ctx, fastRetryConfig(3), func(context.Context) (interface{}, error) {
		calls++
		return nil, nil
	}, "test.cancelled")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryWithBreakerDoesNotRetryOpenCircuit(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{Name: "retry-breaker", Timeout: time.Minute, FailureThreshold: 1}, nil)

	calls := 0
	_, err := RetryWithBreaker(context.Background(), fastRetryConfig(4), breaker, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("upstream down")
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(3, cfg))
}
