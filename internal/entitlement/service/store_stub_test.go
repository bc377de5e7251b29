package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
)

type planRow struct {
	plan  plandomain.Plan
	stamp subscriptiondomain.Stamp
}

type usageRow struct {
	usage subscriptiondomain.Usage
	stamp subscriptiondomain.Stamp
}

// storeStub is an in-memory Store applying the same session/version guard as
// the real implementations. Hooks inject failures and delays.
type storeStub struct {
	mu    sync.Mutex
	plans map[snowflake.ID]planRow
	usage map[snowflake.ID]usageRow

	loadPlanErr  error
	loadUsageErr error
	// saveHook runs before every save; a non-nil error fails the call.
	saveHook func(ctx context.Context, kind writeKind, call int) error

	loadPlanCalls atomic.Int32
	saveCalls     atomic.Int32
	savedVersions []int64
}

func newStoreStub() *storeStub {
	return &storeStub{
		plans: map[snowflake.ID]planRow{},
		usage: map[snowflake.ID]usageRow{},
	}
}

func (s *storeStub) LoadPlan(ctx context.Context, accountID snowflake.ID) (plandomain.Plan, error) {
	s.loadPlanCalls.Add(1)
	if s.loadPlanErr != nil {
		return plandomain.DefaultPlan, s.loadPlanErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.plans[accountID]
	if !ok {
		return plandomain.DefaultPlan, subscriptiondomain.ErrNotFound
	}
	return row.plan, nil
}

func (s *storeStub) SavePlan(ctx context.Context, accountID snowflake.ID, plan plandomain.Plan, stamp subscriptiondomain.Stamp) error {
	if err := s.beforeSave(ctx, writePlan); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.plans[accountID]; ok && stale(row.stamp, stamp) {
		return subscriptiondomain.ErrStaleWrite
	}
	s.plans[accountID] = planRow{plan: plan, stamp: stamp}
	return nil
}

func (s *storeStub) LoadUsage(ctx context.Context, accountID snowflake.ID) (subscriptiondomain.Usage, error) {
	if s.loadUsageErr != nil {
		return subscriptiondomain.Usage{}, s.loadUsageErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.usage[accountID]
	if !ok {
		return subscriptiondomain.Usage{}, subscriptiondomain.ErrNotFound
	}
	return row.usage, nil
}

func (s *storeStub) SaveUsage(ctx context.Context, accountID snowflake.ID, usage subscriptiondomain.Usage, stamp subscriptiondomain.Stamp) error {
	if err := s.beforeSave(ctx, writeUsage); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.usage[accountID]; ok && stale(row.stamp, stamp) {
		return subscriptiondomain.ErrStaleWrite
	}
	s.usage[accountID] = usageRow{usage: usage, stamp: stamp}
	s.savedVersions = append(s.savedVersions, stamp.Version)
	return nil
}

func (s *storeStub) beforeSave(ctx context.Context, kind writeKind) error {
	call := int(s.saveCalls.Add(1))
	if s.saveHook != nil {
		if err := s.saveHook(ctx, kind, call); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *storeStub) storedUsage(accountID snowflake.ID) (subscriptiondomain.Usage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.usage[accountID]
	return row.usage, ok
}

func (s *storeStub) storedPlan(accountID snowflake.ID) (plandomain.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.plans[accountID]
	return row.plan, ok
}

func (s *storeStub) versions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.savedVersions...)
}

func stale(stored, incoming subscriptiondomain.Stamp) bool {
	return stored.SessionID == incoming.SessionID && stored.Version >= incoming.Version
}
