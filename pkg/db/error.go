package db

import (
	"context"
	"errors"
	"net"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	ReasonTimeout     = "timeout"
	ReasonCanceled    = "canceled"
	ReasonUnavailable = "unavailable"
	ReasonNotFound    = "not_found"
	ReasonUnknown     = "unknown"
)

// ErrorReason maps a storage error onto a low-cardinality label suitable for
// metrics.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, redis.Nil):
		return ReasonNotFound
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "too many connections"):
		return ReasonUnavailable
	}
	return ReasonUnknown
}
