package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizdash/internal/clock"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
)

// guardedWriteScript applies the field/value pairs in ARGV[3:] to the hash
// at KEYS[1] unless the hash was written by session ARGV[1] at a version of
// at least ARGV[2]. Returns 1 when applied and 0 when rejected.
const guardedWriteScript = `
local sid = redis.call("HGET", KEYS[1], "session_id")
local ver = tonumber(redis.call("HGET", KEYS[1], "version"))
if sid == ARGV[1] and ver ~= nil and ver >= tonumber(ARGV[2]) then
  return 0
end
redis.call("HSET", KEYS[1], "session_id", ARGV[1], "version", ARGV[2], unpack(ARGV, 3))
return 1
`

const keyPrefix = "bizdash"

type redisStore struct {
	client *redis.Client
	script *redis.Script
	clock  clock.Clock
}

// ProvideRedis returns a Store that keeps each account's plan and usage in
// redis hashes.
func ProvideRedis(client *redis.Client, clk clock.Clock) subscriptiondomain.Store {
	return &redisStore{
		client: client,
		script: redis.NewScript(guardedWriteScript),
		clock:  clk,
	}
}

func planKey(accountID snowflake.ID) string {
	return fmt.Sprintf("%s:plan:%s", keyPrefix, accountID.String())
}

func usageKey(accountID snowflake.ID) string {
	return fmt.Sprintf("%s:usage:%s", keyPrefix, accountID.String())
}

func (s *redisStore) LoadPlan(ctx context.Context, accountID snowflake.ID) (plandomain.Plan, error) {
	if accountID == 0 {
		return plandomain.DefaultPlan, subscriptiondomain.ErrInvalidAccount
	}

	raw, err := s.client.HGet(ctx, planKey(accountID), "plan").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return plandomain.DefaultPlan, subscriptiondomain.ErrNotFound
		}
		return plandomain.DefaultPlan, err
	}
	return plandomain.ParsePlan(raw)
}

func (s *redisStore) SavePlan(ctx context.Context, accountID snowflake.ID, plan plandomain.Plan, stamp subscriptiondomain.Stamp) error {
	if accountID == 0 {
		return subscriptiondomain.ErrInvalidAccount
	}
	if !plan.Valid() {
		return fmt.Errorf("%w: %d", subscriptiondomain.ErrInvalidPlan, plan)
	}

	return s.guardedWrite(ctx, planKey(accountID), stamp,
		"plan", plan.String(),
		"updated_at", s.clock.Now().Format(time.RFC3339Nano),
	)
}

func (s *redisStore) LoadUsage(ctx context.Context, accountID snowflake.ID) (subscriptiondomain.Usage, error) {
	if accountID == 0 {
		return subscriptiondomain.Usage{}, subscriptiondomain.ErrInvalidAccount
	}

	fields, err := s.client.HGetAll(ctx, usageKey(accountID)).Result()
	if err != nil {
		return subscriptiondomain.Usage{}, err
	}
	if len(fields) == 0 {
		return subscriptiondomain.Usage{}, subscriptiondomain.ErrNotFound
	}

	invoices, err := strconv.ParseInt(fields["invoices"], 10, 64)
	if err != nil {
		return subscriptiondomain.Usage{}, fmt.Errorf("%w: invoices: %v", subscriptiondomain.ErrInvalidUsage, err)
	}
	bills, err := strconv.ParseInt(fields["bills"], 10, 64)
	if err != nil {
		return subscriptiondomain.Usage{}, fmt.Errorf("%w: bills: %v", subscriptiondomain.ErrInvalidUsage, err)
	}
	periodStart, err := time.Parse(time.RFC3339Nano, fields["period_start"])
	if err != nil {
		return subscriptiondomain.Usage{}, fmt.Errorf("%w: period_start: %v", subscriptiondomain.ErrInvalidUsage, err)
	}

	counters := subscriptiondomain.UsageCounters{Invoices: invoices, Bills: bills}
	if !counters.Valid() {
		return subscriptiondomain.Usage{}, fmt.Errorf("%w: invoices=%d bills=%d", subscriptiondomain.ErrInvalidUsage, invoices, bills)
	}

	return subscriptiondomain.Usage{
		Counters:    counters,
		PeriodStart: periodStart.UTC(),
	}, nil
}

func (s *redisStore) SaveUsage(ctx context.Context, accountID snowflake.ID, usage subscriptiondomain.Usage, stamp subscriptiondomain.Stamp) error {
	if accountID == 0 {
		return subscriptiondomain.ErrInvalidAccount
	}
	if !usage.Counters.Valid() {
		return subscriptiondomain.ErrInvalidUsage
	}

	return s.guardedWrite(ctx, usageKey(accountID), stamp,
		"invoices", strconv.FormatInt(usage.Counters.Invoices, 10),
		"bills", strconv.FormatInt(usage.Counters.Bills, 10),
		"period_start", usage.PeriodStart.UTC().Format(time.RFC3339Nano),
		"updated_at", s.clock.Now().Format(time.RFC3339Nano),
	)
}

func (s *redisStore) guardedWrite(ctx context.Context, key string, stamp subscriptiondomain.Stamp, fields ...any) error {
	args := append([]any{stamp.SessionID, stamp.Version}, fields...)
	applied, err := s.script.Run(ctx, s.client, []string{key}, args...).Int64()
	if err != nil {
		return err
	}
	if applied == 0 {
		return subscriptiondomain.ErrStaleWrite
	}
	return nil
}
