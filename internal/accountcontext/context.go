// Package accountcontext carries the authenticated account identifier through
// request contexts. The identifier is assigned by the upstream auth gateway.
package accountcontext

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// HeaderAccountID is set by the gateway after authenticating the caller.
const HeaderAccountID = "X-Account-Id"

var ErrMissingAccount = errors.New("missing_account")

type accountContextKey struct{}

// WithAccountID stores the account ID in the context.
func WithAccountID(ctx context.Context, accountID snowflake.ID) context.Context {
	return context.WithValue(ctx, accountContextKey{}, accountID)
}

// AccountIDFromContext returns the account ID from context, if set.
func AccountIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(accountContextKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// ParseAccountID parses a header value into an account ID.
func ParseAccountID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissingAccount
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, ErrMissingAccount
	}
	return id, nil
}
