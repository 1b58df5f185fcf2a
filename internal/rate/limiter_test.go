package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, maxRequests int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, Config{MaxRequests: maxRequests, Window: time.Hour}), mr
}

func TestLimiterAllowsWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, limiter.Allow(ctx, "alice@x.com", "10.0.0.1"))
	}
}

func TestLimiterBlocksOverBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "alice@x.com", "10.0.0.1"))
	require.NoError(t, limiter.Allow(ctx, "alice@x.com", "10.0.0.1"))

	err := limiter.Allow(ctx, "alice@x.com", "10.0.0.1")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "alice@x.com", "10.0.0.1"))

	// A different email from a different IP has its own budget.
	assert.NoError(t, limiter.Allow(ctx, "bob@x.com", "10.0.0.2"))

	// The same email is blocked regardless of IP.
	assert.ErrorIs(t, limiter.Allow(ctx, "alice@x.com", "10.0.0.3"), ErrRateLimited)
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "alice@x.com", ""))
	require.ErrorIs(t, limiter.Allow(ctx, "alice@x.com", ""), ErrRateLimited)

	mr.FastForward(2 * time.Hour)

	assert.NoError(t, limiter.Allow(ctx, "alice@x.com", ""))
}

func TestNilLimiterFailsOpen(t *testing.T) {
	var limiter *Limiter
	assert.NoError(t, limiter.Allow(context.Background(), "alice@x.com", "10.0.0.1"))
}
