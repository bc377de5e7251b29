package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/bizdash/internal/plan/domain"
)

// Store is the external persistence boundary for plans and usage. Writes
// from the same session whose version is not newer than the stored one are
// rejected with ErrStaleWrite; writes from another session replace the row.
type Store interface {
	// LoadPlan returns ErrNotFound when the account has no plan row and an
	// error wrapping ErrInvalidPlan when the stored value is not a known plan.
	LoadPlan(ctx context.Context, accountID snowflake.ID) (plandomain.Plan, error)
	SavePlan(ctx context.Context, accountID snowflake.ID, plan plandomain.Plan, stamp Stamp) error
	// LoadUsage returns ErrNotFound when the account has no usage row.
	LoadUsage(ctx context.Context, accountID snowflake.ID) (Usage, error)
	SaveUsage(ctx context.Context, accountID snowflake.ID, usage Usage, stamp Stamp) error
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidPlan    = plandomain.ErrInvalidPlan
	ErrInvalidUsage   = errors.New("invalid_usage")
	ErrInvalidAccount = errors.New("invalid_account")
	ErrStaleWrite     = errors.New("stale_write")
)
