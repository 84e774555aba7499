package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
)

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d", i)
		assert.Equal(t, 3, decision.Limit)
		assert.Equal(t, 2-i, decision.Remaining)
	}

	decision, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	blocked, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	other, err := limiter.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	assert.Equal(t, []string{"client-a", "client-b"}, limiter.ActiveKeys())
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }

	decision, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	limiter.now = func() time.Time { return base.Add(30 * time.Second) }
	decision, err = limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 30*time.Second, decision.RetryAfter)

	limiter.now = func() time.Time { return base.Add(61 * time.Second) }
	decision, err = limiter.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryLimiter_IdleWindowsAreDropped(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	_, err := limiter.Allow(ctx, "client-a")
	require.NoError(t, err)

	// Two minutes later client-a's window is fully expired; the sweep
	// triggered by client-b's request drops it.
	limiter.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = limiter.Allow(ctx, "client-b")
	require.NoError(t, err)

	assert.Equal(t, []string{"client-b"}, limiter.ActiveKeys())
}

func TestNew_PicksMemoryWithoutRedis(t *testing.T) {
	limiter, err := New(config.RateLimitConfig{RequestsPerMinute: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	_, ok := limiter.(*MemoryLimiter)
	assert.True(t, ok)
}
