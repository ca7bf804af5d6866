package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustguard/engine/internal/service"
	"trustguard/engine/pkg/response"
)

// BanChecker is satisfied by service.TrustService.
type BanChecker interface {
	EnsureNotBanned(ctx context.Context, userID uuid.UUID) error
}

// BanCheck rejects suspended accounts. The ban expiry is never disclosed.
func BanCheck(bans BanChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := UserIDFromContext(c)
		if err != nil {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}

		err = bans.EnsureNotBanned(c.Request.Context(), userID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrAccountSuspended):
			response.Denied(c, 403, "Your account has been temporarily suspended",
				response.PolicyDenied{Reason: "account_suspended"})
			c.Abort()
		default:
			logger.Error("ban check failed", zap.String("user_id", userID.String()), zap.Error(err))
			response.ServiceUnavailable(c, "service temporarily unavailable")
			c.Abort()
		}
	}
}
