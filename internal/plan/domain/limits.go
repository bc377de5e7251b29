package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Limit is a usage ceiling. A Limit is either finite or Unbounded; the zero
// value is a finite ceiling of 0.
type Limit struct {
	max       int64
	unbounded bool
}

// Unbounded is the limit without a ceiling.
var Unbounded = Limit{unbounded: true}

// MaxOf returns a finite limit of n.
func MaxOf(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{max: n}
}

func (l Limit) IsUnbounded() bool {
	return l.unbounded
}

// Max returns the finite ceiling. ok is false for Unbounded.
func (l Limit) Max() (n int64, ok bool) {
	if l.unbounded {
		return 0, false
	}
	return l.max, true
}

// Allows reports whether one more unit may be consumed when used units have
// already been consumed. Reaching the ceiling blocks the next unit.
func (l Limit) Allows(used int64) bool {
	return l.unbounded || used < l.max
}

func (l Limit) String() string {
	if l.unbounded {
		return "unbounded"
	}
	return strconv.FormatInt(l.max, 10)
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unbounded {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(l.max, 10)), nil
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = Unbounded
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("limit: %w", err)
	}
	*l = MaxOf(n)
	return nil
}

// Limits are the usage ceilings attached to a plan.
type Limits struct {
	Invoices Limit `json:"invoices"`
	Bills    Limit `json:"bills"`
}

// LimitsFor returns the ceilings granted by p.
func LimitsFor(p Plan) Limits {
	switch p {
	case PlanFree:
		return Limits{Invoices: MaxOf(10), Bills: MaxOf(10)}
	case PlanStarter:
		return Limits{Invoices: MaxOf(50), Bills: MaxOf(50)}
	case PlanProfessional:
		return Limits{Invoices: Unbounded, Bills: Unbounded}
	case PlanPremium:
		return Limits{Invoices: Unbounded, Bills: Unbounded}
	default:
		panic(fmt.Sprintf("plan: no limits for unknown plan value %d", uint8(p)))
	}
}
