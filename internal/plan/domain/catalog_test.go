package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsDeterministic(t *testing.T) {
	for _, p := range Plans() {
		assert.Equal(t, LimitsFor(p), LimitsFor(p), "limits for %s", p)
		assert.Equal(t, FeaturesFor(p), FeaturesFor(p), "features for %s", p)
	}
}

func TestFeaturesAreMonotoneAcrossTiers(t *testing.T) {
	plans := Plans()
	for i := 0; i < len(plans)-1; i++ {
		lower := FeaturesFor(plans[i]).Flags()
		for j := i + 1; j < len(plans); j++ {
			higher := FeaturesFor(plans[j]).Flags()
			for feature, enabled := range lower {
				if enabled && !higher[feature] {
					t.Fatalf("feature %s enabled on %s but not on %s", feature, plans[i], plans[j])
				}
			}
		}
	}
}

func TestReferenceLimits(t *testing.T) {
	free := LimitsFor(PlanFree)
	n, ok := free.Invoices.Max()
	require.True(t, ok)
	assert.Equal(t, int64(10), n)
	n, ok = free.Bills.Max()
	require.True(t, ok)
	assert.Equal(t, int64(10), n)

	starter := LimitsFor(PlanStarter)
	n, ok = starter.Invoices.Max()
	require.True(t, ok)
	assert.Equal(t, int64(50), n)

	assert.True(t, LimitsFor(PlanProfessional).Invoices.IsUnbounded())
	assert.True(t, LimitsFor(PlanPremium).Bills.IsUnbounded())
}

func TestReferenceFeatures(t *testing.T) {
	assert.Equal(t, Features{}, FeaturesFor(PlanFree))
	assert.True(t, FeaturesFor(PlanStarter).Has(FeatureAccounting))
	assert.False(t, FeaturesFor(PlanStarter).Has(FeatureInventory))
	assert.True(t, FeaturesFor(PlanProfessional).Has(FeatureTaxCompliance))
	assert.False(t, FeaturesFor(PlanProfessional).Has(FeaturePayroll))
	for feature, enabled := range FeaturesFor(PlanPremium).Flags() {
		assert.True(t, enabled, "premium should enable %s", feature)
	}
}

func TestUnknownPlanFailsFast(t *testing.T) {
	unknown := Plan(42)
	assert.False(t, unknown.Valid())
	assert.Panics(t, func() { LimitsFor(unknown) })
	assert.Panics(t, func() { FeaturesFor(unknown) })
	assert.Panics(t, func() { unknown.AtLeast(PlanFree) })
}

func TestParsePlan(t *testing.T) {
	for _, p := range Plans() {
		parsed, err := ParsePlan(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}

	parsed, err := ParsePlan("  Premium ")
	require.NoError(t, err)
	assert.Equal(t, PlanPremium, parsed)

	parsed, err = ParsePlan("enterprise")
	assert.True(t, errors.Is(err, ErrInvalidPlan))
	assert.Equal(t, DefaultPlan, parsed)
}

func TestPlanJSON(t *testing.T) {
	var body struct {
		Plan Plan `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"plan":"professional"}`), &body))
	assert.Equal(t, PlanProfessional, body.Plan)

	err := json.Unmarshal([]byte(`{"plan":"gold"}`), &body)
	assert.True(t, errors.Is(err, ErrInvalidPlan))

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"plan":"professional"}`, string(out))
}

func TestLimitAllows(t *testing.T) {
	limit := MaxOf(10)
	assert.True(t, limit.Allows(9))
	assert.False(t, limit.Allows(10))
	assert.False(t, limit.Allows(11))

	for _, used := range []int64{0, 10, 10_000, 1 << 62} {
		assert.True(t, Unbounded.Allows(used))
	}

	var zero Limit
	assert.False(t, zero.IsUnbounded())
	assert.False(t, zero.Allows(0))
}

func TestLimitJSON(t *testing.T) {
	out, err := json.Marshal(Limits{Invoices: MaxOf(50), Bills: Unbounded})
	require.NoError(t, err)
	assert.JSONEq(t, `{"invoices":50,"bills":null}`, string(out))

	var decoded Limits
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, MaxOf(50), decoded.Invoices)
	assert.True(t, decoded.Bills.IsUnbounded())
}
