package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/bizdash/internal/clock"
	"github.com/smallbiznis/bizdash/internal/config"
	"github.com/smallbiznis/bizdash/internal/observability/metrics"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"github.com/smallbiznis/bizdash/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	fallbackStoreUnavailable = "store_unavailable"
	fallbackInvalidPlan      = "invalid_plan"
	fallbackInvalidUsage     = "invalid_usage"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Store   subscriptiondomain.Store
	Clock   clock.Clock
	Policy  *config.SyncPolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
}

// Service opens account entitlement states backed by the usage store.
type Service struct {
	log     *zap.Logger
	store   subscriptiondomain.Store
	clock   clock.Clock
	policy  *config.SyncPolicyHolder
	metrics *metrics.Metrics
}

func NewService(p Params) *Service {
	policy := p.Policy
	if policy == nil {
		policy = config.StaticSyncPolicy(config.DefaultSyncPolicy())
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:     p.Log.Named("entitlement.service"),
		store:   p.Store,
		clock:   clk,
		policy:  policy,
		metrics: p.Metrics,
	}
}

// Open loads the plan and usage of accountID and returns a live state with
// its own background writer. It never fails: a missing row yields defaults,
// and so does a store failure or a corrupt row, after logging it.
func (s *Service) Open(ctx context.Context, accountID snowflake.ID) *State {
	log := s.log.With(zap.String("account_id", accountID.String()))

	loadCtx, cancel := context.WithTimeout(ctx, s.policy.Get().LoadTimeout)
	defer cancel()

	var (
		plan     plandomain.Plan
		planErr  error
		usage    subscriptiondomain.Usage
		usageErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		plan, planErr = s.store.LoadPlan(loadCtx, accountID)
		return nil
	})
	g.Go(func() error {
		usage, usageErr = s.store.LoadUsage(loadCtx, accountID)
		return nil
	})
	_ = g.Wait()

	plan, planDegraded := s.resolvePlan(ctx, log, plan, planErr)
	usage, usageDegraded := s.resolveUsage(ctx, log, usage, usageErr)
	degraded := planDegraded || usageDegraded

	state := newState(stateParams{
		accountID: accountID,
		sessionID: uuid.NewString(),
		plan:      plan,
		usage:     usage,
		degraded:  degraded,
		store:     s.store,
		policy:    s.policy,
		clock:     s.clock,
		log:       log,
		metrics:   s.metrics,
	})

	log.Debug("entitlement state opened",
		zap.String("session_id", state.SessionID()),
		zap.String("plan", plan.String()),
		zap.Int64("invoices", usage.Counters.Invoices),
		zap.Int64("bills", usage.Counters.Bills),
		zap.Bool("degraded", degraded),
	)
	return state
}

func (s *Service) resolvePlan(ctx context.Context, log *zap.Logger, plan plandomain.Plan, err error) (plandomain.Plan, bool) {
	switch {
	case err == nil:
		return plan, false
	case errors.Is(err, subscriptiondomain.ErrNotFound):
		return plandomain.DefaultPlan, false
	case errors.Is(err, subscriptiondomain.ErrInvalidPlan):
		log.Error("stored plan is not a known plan, falling back to default",
			zap.String("default_plan", plandomain.DefaultPlan.String()),
			zap.Error(err),
		)
		s.metrics.RecordLoadFallback(ctx, fallbackInvalidPlan)
		return plandomain.DefaultPlan, true
	default:
		log.Warn("load plan failed, proceeding on default plan",
			zap.String("default_plan", plandomain.DefaultPlan.String()),
			zap.Error(err),
		)
		s.metrics.RecordStoreFailure(ctx, "load_plan", db.ErrorReason(err))
		s.metrics.RecordLoadFallback(ctx, fallbackStoreUnavailable)
		return plandomain.DefaultPlan, true
	}
}

func (s *Service) resolveUsage(ctx context.Context, log *zap.Logger, usage subscriptiondomain.Usage, err error) (subscriptiondomain.Usage, bool) {
	fresh := subscriptiondomain.Usage{PeriodStart: s.clock.Now()}

	switch {
	case err == nil:
		if usage.PeriodStart.IsZero() {
			usage.PeriodStart = fresh.PeriodStart
		}
		return usage, false
	case errors.Is(err, subscriptiondomain.ErrNotFound):
		return fresh, false
	case errors.Is(err, subscriptiondomain.ErrInvalidUsage):
		log.Error("stored usage is corrupt, starting from zero", zap.Error(err))
		s.metrics.RecordLoadFallback(ctx, fallbackInvalidUsage)
		return fresh, true
	default:
		log.Warn("load usage failed, proceeding on zero usage", zap.Error(err))
		s.metrics.RecordStoreFailure(ctx, "load_usage", db.ErrorReason(err))
		s.metrics.RecordLoadFallback(ctx, fallbackStoreUnavailable)
		return fresh, true
	}
}

func (s *Service) closeTimeout() time.Duration {
	return s.policy.Get().FlushTimeout
}
