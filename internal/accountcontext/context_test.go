package accountcontext

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountIDRoundTrip(t *testing.T) {
	_, ok := AccountIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithAccountID(context.Background(), snowflake.ID(7))
	id, ok := AccountIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(7), id)
}

func TestParseAccountID(t *testing.T) {
	id, err := ParseAccountID(" 2010735548360036353 ")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2010735548360036353), id)

	for _, raw := range []string{"", "abc", "-4", "0"} {
		_, err := ParseAccountID(raw)
		assert.True(t, errors.Is(err, ErrMissingAccount), "raw=%q", raw)
	}
}
