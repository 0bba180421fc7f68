package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBlocksAfterLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Options{Limit: 3, Window: time.Minute, Block: 5 * time.Minute})
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		res, err := l.Hit(ctx, "login:alice")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Hit(ctx, "login:alice")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 5*time.Minute, res.RetryAfter)

	ttl, blocked, err := l.Blocked(ctx, "login:alice")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, 5*time.Minute, ttl)

	_, blocked, err = l.Blocked(ctx, "login:bob")
	require.NoError(t, err)
	assert.False(t, blocked)

	now = now.Add(6 * time.Minute)
	res, err = l.Hit(ctx, "login:alice")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiterWindowExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Options{Limit: 1, Window: time.Minute, Block: time.Hour})
	l.now = func() time.Time { return now }

	res, _ := l.Hit(ctx, "k")
	assert.True(t, res.Allowed)

	now = now.Add(2 * time.Minute)
	res, _ = l.Hit(ctx, "k")
	assert.True(t, res.Allowed)
}

func TestMemoryLimiterReset(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(Options{Limit: 1, Window: time.Minute, Block: time.Hour})

	l.Hit(ctx, "k")
	res, _ := l.Hit(ctx, "k")
	require.False(t, res.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	res, _ = l.Hit(ctx, "k")
	assert.True(t, res.Allowed)
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	l := NewRedisLimiter(rdb, Options{Limit: 2, Window: time.Minute, Block: time.Minute, Prefix: "test"})
	key := "ratelimit-test:" + time.Now().Format(time.RFC3339Nano)
	defer l.Reset(ctx, key)

	for i := 0; i < 2; i++ {
		res, err := l.Hit(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Hit(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	_, blocked, err := l.Blocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestRedisLimiterExpiresCounterAndClearsOnBlock(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	l := NewRedisLimiter(rdb, Options{Limit: 1, Window: time.Minute, Block: 2 * time.Minute, Prefix: "test"})
	key := "ratelimit-expiry:" + time.Now().Format(time.RFC3339Nano)
	defer l.Reset(ctx, key)

	_, err := l.Hit(ctx, key)
	require.NoError(t, err)

	ttl, err := rdb.TTL(ctx, "test:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	res, err := l.Hit(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	exists, err := rdb.Exists(ctx, "test:"+key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	blockTTL, blocked, err := l.Blocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Greater(t, blockTTL, time.Minute)
}
