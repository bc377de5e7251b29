package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestErrorReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("save usage: %w", context.DeadlineExceeded), ReasonTimeout},
		{context.Canceled, ReasonCanceled},
		{gorm.ErrRecordNotFound, ReasonNotFound},
		{redis.Nil, ReasonNotFound},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), ReasonUnavailable},
		{errors.New("database is locked"), ReasonUnavailable},
		{errors.New("syntax error"), ReasonUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorReason(tc.err), "err=%v", tc.err)
	}
}
