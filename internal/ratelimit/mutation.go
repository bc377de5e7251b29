package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizdash/internal/config"
)

const keyUsageMutation = "bizdash:ratelimit:mutation:%s"

// MutationLimiter caps how often one account may change its usage or plan.
// A nil or disabled limiter allows everything.
type MutationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewMutationLimiter(cfg config.Config, client *redis.Client) *MutationLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil
	}
	return &MutationLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.MutationRate,
		burst:  limitCfg.MutationBurst,
	}
}

func (l *MutationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one mutation token for accountID.
func (l *MutationLimiter) Allow(ctx context.Context, accountID snowflake.ID) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageMutation, accountID.String()), l.rate, l.burst)
}
