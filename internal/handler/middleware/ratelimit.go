package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustguard/engine/internal/service"
	"trustguard/engine/internal/trust"
	"trustguard/engine/pkg/response"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

// LevelResolver reports a user's cached trust level.
type LevelResolver interface {
	Level(ctx context.Context, userID uuid.UUID) (trust.Level, error)
}

// ContextKeyRateDecision holds the *service.RateDecision of the quota gate.
const ContextKeyRateDecision = "rate_decision"

// checkUser runs the caller's quota check for action. It writes the quota
// headers, and on denial or store failure aborts the request and reports false.
func checkUser(c *gin.Context, limiter service.RateLimiter, levels LevelResolver, action trust.Action, logger *zap.Logger) (string, *service.RateDecision, bool) {
	userID, err := UserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "missing authentication")
		c.Abort()
		return "", nil, false
	}
	ctx := c.Request.Context()

	level, err := levels.Level(ctx, userID)
	if err != nil {
		unavailable(c, logger, action, err)
		return "", nil, false
	}

	subject := userID.String()
	decision, err := limiter.Check(ctx, subject, action, level)
	if err != nil {
		unavailable(c, logger, action, err)
		return "", nil, false
	}
	if deny(c, decision) {
		return "", nil, false
	}
	c.Set(ContextKeyRateDecision, decision)
	return subject, decision, true
}

// RateCheck rejects the request when the caller's quota for action is spent
// and never counts it. Callers record the action separately once it happened.
func RateCheck(limiter service.RateLimiter, levels LevelResolver, action trust.Action, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, ok := checkUser(c, limiter, levels, action, logger); !ok {
			return
		}
		c.Next()
	}
}

// RateLimit gates a route that performs action itself. The counter only
// moves when the handler answered below 400, so rejected requests never
// consume quota.
func RateLimit(limiter service.RateLimiter, levels LevelResolver, action trust.Action, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, decision, ok := checkUser(c, limiter, levels, action, logger)
		if !ok {
			return
		}

		c.Next()

		if decision.Tracked && c.Writer.Status() < http.StatusBadRequest {
			if err := limiter.Increment(c.Request.Context(), subject, action); err != nil {
				logger.Error("failed to increment rate counter",
					zap.String("user_id", subject),
					zap.String("action", string(action)),
					zap.Error(err),
				)
			}
		}
	}
}

// IPRateLimit is the pre-authentication variant keyed by client address.
func IPRateLimit(limiter service.RateLimiter, action trust.Action, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		ctx := c.Request.Context()

		decision, err := limiter.CheckIP(ctx, ip, action)
		if err != nil {
			unavailable(c, logger, action, err)
			return
		}
		if deny(c, decision) {
			return
		}

		c.Next()

		if decision.Tracked && c.Writer.Status() < http.StatusBadRequest {
			if err := limiter.IncrementIP(ctx, ip, action); err != nil {
				logger.Error("failed to increment ip rate counter",
					zap.String("ip", ip),
					zap.String("action", string(action)),
					zap.Error(err),
				)
			}
		}
	}
}

// deny writes the quota headers and, when the decision is a denial, the 429.
func deny(c *gin.Context, d *service.RateDecision) bool {
	if !d.Tracked {
		return false
	}
	c.Header(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	c.Header(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	if !d.Limited {
		return false
	}

	retry := int(d.RetryAfter.Seconds())
	c.Header(HeaderRetryAfter, strconv.Itoa(retry))
	response.Denied(c, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded: %d %s per %s", d.Limit, d.Action, windowName(d.Window)),
		response.PolicyDenied{
			Reason: "rate_limited",
			Detail: gin.H{"action": d.Action, "limit": d.Limit, "window_seconds": int(d.Window.Seconds()), "retry_after": retry},
		})
	c.Abort()
	return true
}

// unavailable fails closed: an unverifiable quota rejects the request.
func unavailable(c *gin.Context, logger *zap.Logger, action trust.Action, err error) {
	logger.Error("rate limit check failed",
		zap.String("action", string(action)),
		zap.Error(err),
	)
	response.ServiceUnavailable(c, "service temporarily unavailable")
	c.Abort()
}

func windowName(w time.Duration) string {
	switch h := w.Hours(); {
	case h == 1:
		return "hour"
	case h == 24:
		return "day"
	default:
		return fmt.Sprintf("%gh", h)
	}
}
