package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustguard/engine/internal/service"
	"trustguard/engine/pkg/response"
)

type InviteHandler struct {
	inviteService service.InviteService
	trustService  service.TrustService
	logger        *zap.Logger
}

func NewInviteHandler(inviteService service.InviteService, trustService service.TrustService, logger *zap.Logger) *InviteHandler {
	return &InviteHandler{inviteService: inviteService, trustService: trustService, logger: logger}
}

type CreateInviteRequest struct {
	DaysValid int `json:"days_valid" binding:"min=0,max=90"`
}

func (h *InviteHandler) Create(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	var req CreateInviteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	code, err := h.inviteService.CreateInvite(c.Request.Context(), userID, req.DaysValid)
	if err != nil {
		writeError(c, h.logger, err, "create invite")
		return
	}
	response.Success(c, code)
}

func (h *InviteHandler) List(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}
	codes, err := h.inviteService.ListInvites(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err, "list invites")
		return
	}
	response.Success(c, codes)
}

func (h *InviteHandler) Stats(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}
	stats, err := h.inviteService.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err, "invite stats")
		return
	}
	response.Success(c, stats)
}

func (h *InviteHandler) Revoke(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}
	revoked, err := h.inviteService.RevokeInvite(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		writeError(c, h.logger, err, "revoke invite")
		return
	}
	if !revoked {
		response.NotFound(c, "invite code not found")
		return
	}
	response.Success(c, nil)
}

type RedeemInviteRequest struct {
	Code string `json:"code" binding:"required,max=64"`
}

// Redeem attaches the freshly registered caller to the inviter's tree.
func (h *InviteHandler) Redeem(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	var req RedeemInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.trustService.Initialize(ctx, userID); err != nil {
		writeError(c, h.logger, err, "initialize trust record")
		return
	}
	inviterID, err := h.inviteService.ConsumeInvite(ctx, req.Code, userID)
	if err != nil {
		writeError(c, h.logger, err, "redeem invite")
		return
	}
	response.Success(c, gin.H{"inviter_id": inviterID})
}
