// Package domain derives entitlements (what an account may do) from its plan
// and current usage.
package domain

import (
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/bizdash/internal/subscription/domain"
)

// Entitlements is the resolved view the UI layer reads to gate actions.
type Entitlements struct {
	Plan     plandomain.Plan                  `json:"plan"`
	Limits   plandomain.Limits                `json:"limits"`
	Features plandomain.Features              `json:"features"`
	Usage    subscriptiondomain.UsageCounters `json:"usage"`

	IsPremium             bool `json:"is_premium"`
	IsStarterOrAbove      bool `json:"is_starter_or_above"`
	IsProfessionalOrAbove bool `json:"is_professional_or_above"`
	CanCreateInvoice      bool `json:"can_create_invoice"`
	CanCreateBill         bool `json:"can_create_bill"`
}

// Resolve computes the entitlements for plan at the given usage. It has no
// side effects.
func Resolve(plan plandomain.Plan, usage subscriptiondomain.UsageCounters) Entitlements {
	limits := plandomain.LimitsFor(plan)

	return Entitlements{
		Plan:     plan,
		Limits:   limits,
		Features: plandomain.FeaturesFor(plan),
		Usage:    usage,

		IsPremium:             plan == plandomain.PlanPremium,
		IsStarterOrAbove:      plan.AtLeast(plandomain.PlanStarter),
		IsProfessionalOrAbove: plan.AtLeast(plandomain.PlanProfessional),
		CanCreateInvoice:      limits.Invoices.Allows(usage.Invoices),
		CanCreateBill:         limits.Bills.Allows(usage.Bills),
	}
}
