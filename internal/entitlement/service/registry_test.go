package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/bizdash/internal/config"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T, env *testEnv, ttl time.Duration) *Registry {
	t.Helper()
	r := NewRegistry(RegistryParams{
		Config:  config.Config{RegistrySize: 16, RegistryTTL: ttl},
		Log:     zap.NewNop(),
		Service: env.svc,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})
	return r
}

func TestRegistry_ConcurrentGetSharesOneState(t *testing.T) {
	env := newTestEnv(t, newStoreStub())
	r := newTestRegistry(t, env, time.Minute)

	const callers = 16
	states := make([]*State, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			states[i] = r.Get(context.Background(), testAccountID)
		}()
	}
	wg.Wait()

	for _, state := range states {
		assert.Same(t, states[0], state)
	}
	assert.Equal(t, int32(1), env.store.loadPlanCalls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetSurvivesCanceledCaller(t *testing.T) {
	env := newTestEnv(t, newStoreStub())
	r := newTestRegistry(t, env, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := r.Get(ctx, testAccountID)
	require.NotNil(t, state)
	assert.False(t, state.Degraded())
}

func TestRegistry_CloseFlushesStates(t *testing.T) {
	store := newStoreStub()
	env := newTestEnv(t, store)
	r := newTestRegistry(t, env, time.Minute)

	state := r.Get(context.Background(), testAccountID)
	state.IncrementInvoiceUsage()
	state.IncrementInvoiceUsage()

	require.NoError(t, r.Close(context.Background()))
	assert.True(t, state.Closed())
	assert.Zero(t, r.Len())

	stored, ok := store.storedUsage(testAccountID)
	require.True(t, ok)
	assert.Equal(t, subscriptiondomain.UsageCounters{Invoices: 2}, stored.Counters)
}

func TestRegistry_ExpiredStateIsReopened(t *testing.T) {
	store := newStoreStub()
	env := newTestEnv(t, store)
	r := newTestRegistry(t, env, 50*time.Millisecond)

	first := r.Get(context.Background(), testAccountID)
	first.IncrementBillUsage()

	require.Eventually(t, func() bool {
		_, saved := store.storedUsage(testAccountID)
		return saved && first.Closed()
	}, 2*time.Second, 10*time.Millisecond)

	second := r.Get(context.Background(), testAccountID)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.SessionID(), second.SessionID())
	assert.Equal(t, int64(1), second.Usage().Bills)
}

func TestRegistry_DegradedStateReloadsAfterStoreRecovers(t *testing.T) {
	store := newStoreStub()
	store.plans[testAccountID] = planRow{plan: plandomain.PlanPremium}
	store.usage[testAccountID] = usageRow{usage: subscriptiondomain.Usage{
		Counters:    subscriptiondomain.UsageCounters{Invoices: 40, Bills: 5},
		PeriodStart: testNow.Add(-48 * time.Hour),
	}}
	outage := errors.New("dial tcp 10.0.0.7:5432: connection refused")
	store.loadPlanErr = outage
	store.loadUsageErr = outage

	env := newTestEnv(t, store)
	r := NewRegistry(RegistryParams{
		Config:  config.Config{RegistrySize: 16, RegistryTTL: time.Hour, RegistryDegradedRetry: time.Second},
		Log:     zap.NewNop(),
		Service: env.svc,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})

	first := r.Get(context.Background(), testAccountID)
	require.True(t, first.Degraded())
	assert.Equal(t, plandomain.PlanFree, first.Plan())

	store.loadPlanErr = nil
	store.loadUsageErr = nil

	assert.Same(t, first, r.Get(context.Background(), testAccountID), "served until the retry interval passes")

	env.clock.Advance(time.Second)
	second := r.Get(context.Background(), testAccountID)
	assert.NotSame(t, first, second)
	assert.True(t, first.Closed())
	assert.False(t, second.Degraded())
	assert.Equal(t, plandomain.PlanPremium, second.Plan())
	assert.Equal(t, subscriptiondomain.UsageCounters{Invoices: 40, Bills: 5}, second.Usage())
	assert.Same(t, second, r.Get(context.Background(), testAccountID))

	second.IncrementInvoiceUsage()
	flush(t, second)
	stored, ok := store.storedUsage(testAccountID)
	require.True(t, ok)
	assert.Equal(t, subscriptiondomain.UsageCounters{Invoices: 41, Bills: 5}, stored.Counters)
}
