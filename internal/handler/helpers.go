package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustguard/engine/internal/handler/middleware"
	"trustguard/engine/internal/service"
	"trustguard/engine/pkg/response"
)

func getUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	return middleware.UserIDFromContext(c)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors onto the wire. Policy violations carry their
// own message; anything unrecognised is logged and reported as an opaque 500.
func writeError(c *gin.Context, logger *zap.Logger, err error, op string) {
	var (
		rateErr   *service.RateLimitError
		inviteErr *service.InviteLimitError
	)
	switch {
	case errors.As(err, &rateErr):
		response.Denied(c, http.StatusTooManyRequests, rateErr.Error(), response.PolicyDenied{
			Reason: "rate_limited",
			Detail: gin.H{"limit": rateErr.Limit, "window_seconds": int(rateErr.Window.Seconds()), "retry_after": int(rateErr.RetryAfter.Seconds())},
		})
	case errors.As(err, &inviteErr):
		response.Denied(c, http.StatusForbidden, inviteErr.Error(), response.PolicyDenied{
			Reason: "invite_limit",
			Detail: gin.H{"quota": inviteErr.Quota, "trust_level": inviteErr.Level},
		})
	case errors.Is(err, service.ErrTrustRecordNotFound),
		errors.Is(err, service.ErrInviteNotFound),
		errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrAccountSuspended):
		response.Forbidden(c, "Your account has been temporarily suspended")
	case errors.Is(err, service.ErrDeviceBlocked), errors.Is(err, service.ErrNotOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrAlreadyInvited):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidTrustLevel),
		errors.Is(err, service.ErrUnknownActivityKind),
		service.IsPolicyViolation(err):
		response.BadRequest(c, err.Error())
	default:
		logger.Error(op+" failed", zap.Error(err))
		response.InternalError(c, "internal error")
	}
}
