package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizdash/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccountID snowflake.ID = 2010735548360036353

func setupLimiter(t *testing.T, rate float64, burst int) (*MutationLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewMutationLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, MutationRate: rate, MutationBurst: burst},
	}, client)
	require.True(t, limiter.Enabled())
	return limiter, mr
}

func TestMutationLimiterAllowsBurstThenDenies(t *testing.T) {
	limiter, _ := setupLimiter(t, 1, 3)
	ctx := context.Background()

	for i := range 3 {
		res, err := limiter.Allow(ctx, testAccountID)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d", i+1)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := limiter.Allow(ctx, testAccountID)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, time.Second, res.RetryAfter)
}

func TestMutationLimiterRefillsOverTime(t *testing.T) {
	limiter, mr := setupLimiter(t, 2, 1)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, testAccountID)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, testAccountID)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	mr.SetTime(time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC))
	res, err = limiter.Allow(ctx, testAccountID)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMutationLimiterKeysPerAccount(t *testing.T) {
	limiter, _ := setupLimiter(t, 1, 1)
	ctx := context.Background()

	res, err := limiter.Allow(ctx, testAccountID)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, testAccountID+1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestDisabledMutationLimiterAllows(t *testing.T) {
	var limiter *MutationLimiter
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), testAccountID)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Nil(t, NewMutationLimiter(config.Config{}, redis.NewClient(&redis.Options{})))
}
