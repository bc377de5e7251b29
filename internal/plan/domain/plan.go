// Package domain holds the static subscription plan catalog: the closed set
// of plans and the limits and features each one grants.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Plan is a subscription tier. The set is closed; values outside the declared
// constants are programming errors.
type Plan uint8

const (
	PlanFree Plan = iota
	PlanStarter
	PlanProfessional
	PlanPremium
)

// DefaultPlan is used when an account has no stored plan or the stored value
// cannot be trusted.
const DefaultPlan = PlanFree

var ErrInvalidPlan = errors.New("invalid_plan")

// Plans lists every plan ordered from the lowest tier to the highest.
func Plans() []Plan {
	return []Plan{PlanFree, PlanStarter, PlanProfessional, PlanPremium}
}

// ParsePlan converts a stored or transmitted plan identifier into a Plan.
func ParsePlan(raw string) (Plan, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "free":
		return PlanFree, nil
	case "starter":
		return PlanStarter, nil
	case "professional":
		return PlanProfessional, nil
	case "premium":
		return PlanPremium, nil
	default:
		return DefaultPlan, fmt.Errorf("%w: %q", ErrInvalidPlan, raw)
	}
}

func (p Plan) String() string {
	switch p {
	case PlanFree:
		return "free"
	case PlanStarter:
		return "starter"
	case PlanProfessional:
		return "professional"
	case PlanPremium:
		return "premium"
	default:
		return fmt.Sprintf("plan(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the declared plans.
func (p Plan) Valid() bool {
	return p <= PlanPremium
}

// AtLeast reports whether p is the same tier as other or above it.
func (p Plan) AtLeast(other Plan) bool {
	mustBeValid(p)
	mustBeValid(other)
	return p >= other
}

func (p Plan) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlan, uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Plan) UnmarshalText(text []byte) error {
	parsed, err := ParsePlan(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func mustBeValid(p Plan) {
	if !p.Valid() {
		panic(fmt.Sprintf("plan: unknown plan value %d", uint8(p)))
	}
}
