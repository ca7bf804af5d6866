package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustguard/engine/internal/handler/middleware"
	"trustguard/engine/internal/service"
	"trustguard/engine/internal/trust"
	"trustguard/engine/pkg/response"
)

type TrustHandler struct {
	trustService service.TrustService
	rateLimiter  service.RateLimiter
	logger       *zap.Logger
}

func NewTrustHandler(trustService service.TrustService, rateLimiter service.RateLimiter, logger *zap.Logger) *TrustHandler {
	return &TrustHandler{trustService: trustService, rateLimiter: rateLimiter, logger: logger}
}

type trustSummary struct {
	Level             trust.Level    `json:"trust_level"`
	TrustPoints       int            `json:"trust_points"`
	PostsCount        int            `json:"posts_count"`
	FlagsReceived     int            `json:"flags_received"`
	Strikes           int            `json:"strikes"`
	InvitesSent       int            `json:"invites_sent"`
	SuccessfulInvites int            `json:"successful_invites"`
	Remaining         map[string]int `json:"remaining"`
}

var summaryActions = []trust.Action{
	trust.ActionPost,
	trust.ActionComment,
	trust.ActionFollow,
	trust.ActionLike,
}

// Me returns the caller's own record and what is left of their quotas.
func (h *TrustHandler) Me(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}
	ctx := c.Request.Context()

	score, err := h.trustService.Get(ctx, userID)
	if err != nil {
		writeError(c, h.logger, err, "get trust record")
		return
	}

	remaining := make(map[string]int, len(summaryActions))
	for _, action := range summaryActions {
		left, err := h.rateLimiter.Remaining(ctx, userID.String(), action, score.TrustLevel)
		if err != nil {
			writeError(c, h.logger, err, "read remaining quota")
			return
		}
		remaining[string(action)] = left
	}

	response.Success(c, trustSummary{
		Level:             score.TrustLevel,
		TrustPoints:       score.TrustPoints,
		PostsCount:        score.PostsCount,
		FlagsReceived:     score.FlagsReceived,
		Strikes:           score.Strikes,
		InvitesSent:       score.InvitesSent,
		SuccessfulInvites: score.SuccessfulInvites,
		Remaining:         remaining,
	})
}

// Admit answers an upstream service asking whether the caller may perform a
// gated action. It sits behind middleware.RateCheck and counts nothing.
func (h *TrustHandler) Admit(c *gin.Context) {
	out := gin.H{"allowed": true}
	if v, ok := c.Get(middleware.ContextKeyRateDecision); ok {
		if d, ok := v.(*service.RateDecision); ok && d.Tracked {
			out["limit"] = d.Limit
			out["remaining"] = d.Remaining
		}
	}
	response.Success(c, out)
}

// Record counts action against the caller once the upstream service has
// actually performed it.
func (h *TrustHandler) Record(action trust.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := getUserIDFromContext(c)
		if err != nil {
			response.Unauthorized(c, "invalid user context")
			return
		}
		if err := h.rateLimiter.Increment(c.Request.Context(), userID.String(), action); err != nil {
			h.logger.Error("failed to record gated action",
				zap.String("user_id", userID.String()),
				zap.String("action", string(action)),
				zap.Error(err),
			)
			response.ServiceUnavailable(c, "service temporarily unavailable")
			return
		}
		response.Success(c, nil)
	}
}
