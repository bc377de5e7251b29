package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizdash/internal/accountcontext"
	obscontext "github.com/smallbiznis/bizdash/internal/observability/context"
	"github.com/smallbiznis/bizdash/internal/observability/logger"
	"go.uber.org/zap"
)

// AccountRequired resolves the calling account from the gateway header.
func AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, err := accountcontext.ParseAccountID(c.GetHeader(accountcontext.HeaderAccountID))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := accountcontext.WithAccountID(c.Request.Context(), accountID)
		ctx = obscontext.WithAccountID(ctx, accountID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// MutationRateLimit rejects mutations once the account has used up its
// token bucket. A limiter outage lets the request through.
func (s *Server) MutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		accountID, ok := accountcontext.AccountIDFromContext(ctx)
		if !ok {
			AbortWithError(c, accountcontext.ErrMissingAccount)
			return
		}

		route := c.FullPath()
		res, err := s.limiter.Allow(ctx, accountID)
		if err != nil {
			logger.WithContext(ctx, s.log).Warn("mutation rate limit check failed, allowing request", zap.Error(err))
			s.obsMetrics.RecordRateLimit(ctx, route, "error")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			logger.WithContext(ctx, s.log).Warn("mutation rate limit exceeded", zap.String("route", route))
			s.obsMetrics.RecordRateLimit(ctx, route, "denied")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimit(ctx, route, "allowed")
		c.Next()
	}
}
