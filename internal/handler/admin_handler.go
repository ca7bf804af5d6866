package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustguard/engine/internal/service"
	"trustguard/engine/internal/trust"
	"trustguard/engine/pkg/response"
)

// AdminHandler serves moderator tooling and the hooks other services call
// when content events happen.
type AdminHandler struct {
	trustService  service.TrustService
	inviteService service.InviteService
	logger        *zap.Logger
}

func NewAdminHandler(trustService service.TrustService, inviteService service.InviteService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		trustService:  trustService,
		inviteService: inviteService,
		logger:        logger,
	}
}

func (h *AdminHandler) InitializeUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.trustService.Initialize(c.Request.Context(), userID); err != nil {
		writeError(c, h.logger, err, "initialize trust record")
		return
	}
	response.Success(c, nil)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	score, err := h.trustService.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err, "get trust record")
		return
	}
	banned := score.IsBanned(service.SystemClock())
	response.Success(c, gin.H{"record": score, "banned": banned, "banned_until": score.BannedUntil})
}

type RecordActivityRequest struct {
	Activity string `json:"activity" binding:"required"`
}

func (h *AdminHandler) RecordActivity(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	var req RecordActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	activity, err := trust.ParseActivity(req.Activity)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.trustService.RecordActivity(c.Request.Context(), userID, activity); err != nil {
		writeError(c, h.logger, err, "record activity")
		return
	}
	response.Success(c, nil)
}

type AddStrikeRequest struct {
	Reason string `json:"reason" binding:"required,max=512"`
}

func (h *AdminHandler) AddStrike(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	var req AddStrikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	strikes, err := h.trustService.AddStrike(c.Request.Context(), userID, req.Reason)
	if err != nil {
		writeError(c, h.logger, err, "add strike")
		return
	}
	response.Success(c, gin.H{"strikes": strikes})
}

func (h *AdminHandler) RecordFlag(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	if err := h.trustService.RecordFlag(c.Request.Context(), userID); err != nil {
		writeError(c, h.logger, err, "record flag")
		return
	}
	response.Success(c, nil)
}

type SetLevelRequest struct {
	Level trust.Level `json:"level"`
}

func (h *AdminHandler) SetLevel(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	var req SetLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	level, err := h.trustService.SetLevel(c.Request.Context(), userID, req.Level)
	if err != nil {
		writeError(c, h.logger, err, "set trust level")
		return
	}
	response.Success(c, gin.H{"trust_level": level})
}

func (h *AdminHandler) Recompute(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	level, err := h.trustService.RecomputeLevel(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err, "recompute level")
		return
	}
	response.Success(c, gin.H{"trust_level": level})
}

func (h *AdminHandler) LevelStats(c *gin.Context) {
	stats, err := h.trustService.LevelStats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err, "level stats")
		return
	}
	out := make(map[string]int64, len(trust.Levels))
	for _, l := range trust.Levels {
		out[l.String()] = stats[l]
	}
	response.Success(c, out)
}

type InviteTreeQuery struct {
	Depth int `form:"depth,default=3" binding:"min=1,max=10"`
}

func (h *AdminHandler) InviteTree(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	var q InviteTreeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	edges, err := h.inviteService.InviteTree(c.Request.Context(), userID, q.Depth)
	if err != nil {
		writeError(c, h.logger, err, "invite tree")
		return
	}
	response.Success(c, edges)
}
