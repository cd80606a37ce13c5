package security

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, capacity int, refill float64) *TokenBucket {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &TokenBucket{Redis: client, Prefix: "rl", Capacity: capacity, RefillRate: refill}
}

func TestTokenBucketExhaustion(t *testing.T) {
	bucket := newTestBucket(t, 3, 0.001)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := bucket.Allow(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, remaining, err := bucket.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	bucket := newTestBucket(t, 1, 0.001)
	ctx := context.Background()

	allowed, _, err := bucket.Allow(ctx, "client-a")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = bucket.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = bucket.Allow(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	bucket := &TokenBucket{}
	allowed, _, err := bucket.Allow(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, allowed)
}
