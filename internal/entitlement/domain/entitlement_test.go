package domain

import (
	"testing"

	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func TestResolveTierFlags(t *testing.T) {
	cases := []struct {
		plan         plandomain.Plan
		premium      bool
		starter      bool
		professional bool
	}{
		{plandomain.PlanFree, false, false, false},
		{plandomain.PlanStarter, false, true, false},
		{plandomain.PlanProfessional, false, true, true},
		{plandomain.PlanPremium, true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.plan.String(), func(t *testing.T) {
			got := Resolve(tc.plan, subscriptiondomain.UsageCounters{})
			assert.Equal(t, tc.premium, got.IsPremium)
			assert.Equal(t, tc.starter, got.IsStarterOrAbove)
			assert.Equal(t, tc.professional, got.IsProfessionalOrAbove)
			assert.Equal(t, plandomain.LimitsFor(tc.plan), got.Limits)
			assert.Equal(t, plandomain.FeaturesFor(tc.plan), got.Features)
		})
	}
}

func TestResolveGatingBoundary(t *testing.T) {
	for _, plan := range []plandomain.Plan{plandomain.PlanFree, plandomain.PlanStarter} {
		limits := plandomain.LimitsFor(plan)
		n, ok := limits.Invoices.Max()
		if !ok {
			t.Fatalf("expected finite invoice limit for %s", plan)
		}

		below := Resolve(plan, subscriptiondomain.UsageCounters{Invoices: n - 1, Bills: n - 1})
		assert.True(t, below.CanCreateInvoice, "%s at limit-1", plan)
		assert.True(t, below.CanCreateBill, "%s at limit-1", plan)

		at := Resolve(plan, subscriptiondomain.UsageCounters{Invoices: n, Bills: n})
		assert.False(t, at.CanCreateInvoice, "%s at limit", plan)
		assert.False(t, at.CanCreateBill, "%s at limit", plan)
	}
}

func TestResolveUnboundedNeverBlocks(t *testing.T) {
	for _, plan := range []plandomain.Plan{plandomain.PlanProfessional, plandomain.PlanPremium} {
		for _, used := range []int64{0, 10, 50, 10_000, 1_000_000_000} {
			got := Resolve(plan, subscriptiondomain.UsageCounters{Invoices: used, Bills: used})
			assert.True(t, got.CanCreateInvoice, "%s invoices=%d", plan, used)
			assert.True(t, got.CanCreateBill, "%s bills=%d", plan, used)
		}
	}
}

func TestResolveFreeAtInvoiceLimitKeepsBills(t *testing.T) {
	got := Resolve(plandomain.PlanFree, subscriptiondomain.UsageCounters{Invoices: 10, Bills: 0})
	assert.False(t, got.CanCreateInvoice)
	assert.True(t, got.CanCreateBill)
	assert.False(t, got.IsPremium)
}

func TestResolveIsPure(t *testing.T) {
	usage := subscriptiondomain.UsageCounters{Invoices: 3, Bills: 7}
	assert.Equal(t, Resolve(plandomain.PlanStarter, usage), Resolve(plandomain.PlanStarter, usage))
	assert.Equal(t, subscriptiondomain.UsageCounters{Invoices: 3, Bills: 7}, usage)
}
