package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/circuitbreaker"
)

func breakerConfig(failures int, openTimeout time.Duration) *circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = failures
	cfg.SuccessThreshold = 1
	cfg.OpenTimeout = openTimeout
	return cfg
}

func TestCircuitBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	flaky := &flakyStore{failures: 100, err: errors.New("connection refused")}
	wrapped := NewCircuitBreakerStore(flaky, breakerConfig(2, time.Minute))
	ctx := context.Background()

	// The first failures pass through while the circuit accumulates them.
	for i := 0; i < 2; i++ {
		err := wrapped.Ping(ctx)
		require.Error(t, err)
		assert.False(t, apperrors.IsStoreUnavailable(err))
	}
	assert.Equal(t, 2, flaky.callCount())

	// Open circuit fails fast without touching the store.
	err := wrapped.Ping(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, flaky.callCount())
}

func TestCircuitBreakerStore_RecoversAfterCooldown(t *testing.T) {
	flaky := &flakyStore{failures: 2, err: errors.New("connection refused")}
	wrapped := NewCircuitBreakerStore(flaky, breakerConfig(2, 10*time.Millisecond))
	ctx := context.Background()

	require.Error(t, wrapped.Ping(ctx))
	require.Error(t, wrapped.Ping(ctx))
	assert.True(t, apperrors.IsStoreUnavailable(wrapped.Ping(ctx)))

	time.Sleep(20 * time.Millisecond)

	// Half-open probe succeeds and closes the circuit again.
	require.NoError(t, wrapped.Ping(ctx))
	require.NoError(t, wrapped.Ping(ctx))
}

func TestCircuitBreakerStore_DomainErrorsDoNotTrip(t *testing.T) {
	missing := &missingStore{}
	wrapped := NewCircuitBreakerStore(missing, breakerConfig(1, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := wrapped.GetAPIByName(ctx, "ghost")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	}
	assert.Equal(t, 3, missing.calls)
}

func TestCircuitBreakerStore_PerOperationIsolation(t *testing.T) {
	flaky := &flakyStore{failures: 100, err: errors.New("connection refused")}
	wrapped := NewCircuitBreakerStore(flaky, breakerConfig(1, time.Minute))
	ctx := context.Background()

	require.Error(t, wrapped.Ping(ctx))
	assert.True(t, apperrors.IsStoreUnavailable(wrapped.Ping(ctx)))

	// A tripped ping breaker does not block lookups on other operations.
	_, err := wrapped.GetAPIByName(ctx, "anything")
	assert.False(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
}

func TestCircuitBreakerStore_Stats(t *testing.T) {
	flaky := &flakyStore{failures: 0}
	wrapped := NewCircuitBreakerStore(flaky, nil)
	ctx := context.Background()

	require.NoError(t, wrapped.Ping(ctx))
	stats := wrapped.BreakerStats()
	require.Contains(t, stats, "ping")
	assert.Equal(t, int64(1), stats["ping"].TotalRequests)
	assert.Equal(t, int64(1), stats["ping"].TotalSuccesses)
}

func TestShouldTripStore(t *testing.T) {
	assert.False(t, shouldTripStore(apperrors.NewNotFound("gone")))
	assert.False(t, shouldTripStore(apperrors.NewInvalidArgument("page", "bad page")))
	assert.False(t, shouldTripStore(context.Canceled))
	assert.True(t, shouldTripStore(errors.New("disk I/O error")))
}
