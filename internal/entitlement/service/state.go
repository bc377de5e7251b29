package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizdash/internal/clock"
	"github.com/smallbiznis/bizdash/internal/config"
	entitlementdomain "github.com/smallbiznis/bizdash/internal/entitlement/domain"
	"github.com/smallbiznis/bizdash/internal/observability/metrics"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"go.uber.org/zap"
)

const (
	mutationInvoice = "invoice"
	mutationBill    = "bill"
	mutationReset   = "reset"
	mutationPlan    = "plan"
)

type stateParams struct {
	accountID snowflake.ID
	sessionID string
	plan      plandomain.Plan
	usage     subscriptiondomain.Usage
	degraded  bool
	store     subscriptiondomain.Store
	policy    *config.SyncPolicyHolder
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// State is the live plan and usage of one account. Mutations apply locally
// and return at once; persistence happens on the state's background writer.
// A State is safe for concurrent use.
type State struct {
	accountID snowflake.ID
	sessionID string
	degraded  bool
	openedAt  time.Time
	clock     clock.Clock
	log       *zap.Logger
	metrics   *metrics.Metrics

	mu           sync.RWMutex
	plan         plandomain.Plan
	usage        subscriptiondomain.UsageCounters
	periodStart  time.Time
	planVersion  int64
	usageVersion int64

	syncer *syncer
}

func newState(p stateParams) *State {
	log := p.log.With(zap.String("session_id", p.sessionID))
	s := &State{
		accountID:   p.accountID,
		sessionID:   p.sessionID,
		degraded:    p.degraded,
		openedAt:    p.clock.Now(),
		clock:       p.clock,
		log:         log,
		metrics:     p.metrics,
		plan:        p.plan,
		usage:       p.usage.Counters,
		periodStart: p.usage.PeriodStart,
	}
	s.syncer = newSyncer(p.accountID, p.store, p.policy, log, p.metrics)
	return s
}

func (s *State) AccountID() snowflake.ID { return s.accountID }

// SessionID identifies the writer of this state in persisted rows.
func (s *State) SessionID() string { return s.sessionID }

// Degraded reports whether the state was opened on defaults because the
// stored rows could not be read.
func (s *State) Degraded() bool { return s.degraded }

func (s *State) Plan() plandomain.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

func (s *State) Usage() subscriptiondomain.UsageCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

func (s *State) PeriodStart() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodStart
}

// Entitlements resolves the current plan and usage.
func (s *State) Entitlements() entitlementdomain.Entitlements {
	s.mu.RLock()
	plan, usage := s.plan, s.usage
	s.mu.RUnlock()
	return entitlementdomain.Resolve(plan, usage)
}

// IncrementInvoiceUsage adds one invoice to the current period. It does not
// consult the limits; callers check Entitlements first.
func (s *State) IncrementInvoiceUsage() subscriptiondomain.UsageCounters {
	return s.mutateUsage(mutationInvoice, func(u *subscriptiondomain.UsageCounters) {
		u.Invoices++
	})
}

// IncrementBillUsage adds one bill to the current period. It does not consult
// the limits; callers check Entitlements first.
func (s *State) IncrementBillUsage() subscriptiondomain.UsageCounters {
	return s.mutateUsage(mutationBill, func(u *subscriptiondomain.UsageCounters) {
		u.Bills++
	})
}

// ResetUsage zeroes both counters and starts a new period.
func (s *State) ResetUsage() subscriptiondomain.UsageCounters {
	return s.mutateUsage(mutationReset, func(u *subscriptiondomain.UsageCounters) {
		*u = subscriptiondomain.UsageCounters{}
	})
}

func (s *State) mutateUsage(kind string, apply func(*subscriptiondomain.UsageCounters)) subscriptiondomain.UsageCounters {
	s.mu.Lock()
	apply(&s.usage)
	if kind == mutationReset {
		s.periodStart = s.clock.Now()
	}
	s.usageVersion++
	w := pendingWrite{
		kind:  writeUsage,
		stamp: subscriptiondomain.Stamp{SessionID: s.sessionID, Version: s.usageVersion},
		usage: subscriptiondomain.Usage{Counters: s.usage, PeriodStart: s.periodStart},
	}
	counters := s.usage
	s.mu.Unlock()

	s.metrics.RecordUsageMutation(context.Background(), kind)
	s.syncer.enqueue(w)
	return counters
}

// SetPlan switches the account to plan locally and persists it in the
// background.
func (s *State) SetPlan(plan plandomain.Plan) error {
	if !plan.Valid() {
		return fmt.Errorf("%w: %d", plandomain.ErrInvalidPlan, plan)
	}

	s.mu.Lock()
	s.plan = plan
	s.planVersion++
	w := pendingWrite{
		kind:  writePlan,
		stamp: subscriptiondomain.Stamp{SessionID: s.sessionID, Version: s.planVersion},
		plan:  plan,
	}
	s.mu.Unlock()

	s.metrics.RecordUsageMutation(context.Background(), mutationPlan)
	s.syncer.enqueue(w)
	return nil
}

// Flush waits until every queued write has been persisted, abandoned or
// dropped, or until ctx is done.
func (s *State) Flush(ctx context.Context) error {
	return s.syncer.flush(ctx)
}

// Close flushes outstanding writes and stops the background writer. Writes
// still pending when ctx expires are abandoned. Close is idempotent.
func (s *State) Close(ctx context.Context) error {
	return s.syncer.close(ctx)
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	return s.syncer.isClosed()
}
