package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trustguard/engine/internal/service"
	"trustguard/engine/pkg/response"
)

type DeviceHandler struct {
	fingerprintService service.FingerprintService
	logger             *zap.Logger
}

func NewDeviceHandler(fingerprintService service.FingerprintService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{fingerprintService: fingerprintService, logger: logger}
}

type RegisterDeviceRequest struct {
	Fingerprint string `json:"fingerprint" binding:"required,max=4096"`
}

// deviceView is what a user may see about their own devices. Risk scores and
// the other accounts on a device stay internal.
type deviceView struct {
	FingerprintHash string `json:"fingerprint_hash"`
	AccountCount    int    `json:"account_count"`
	IsBlocked       bool   `json:"is_blocked"`
}

func toDeviceView(d *service.DeviceInfo) deviceView {
	return deviceView{FingerprintHash: d.FingerprintHash, AccountCount: d.AccountCount, IsBlocked: d.IsBlocked}
}

func (h *DeviceHandler) Register(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var userAgent *string
	if ua := c.GetHeader("User-Agent"); ua != "" {
		userAgent = &ua
	}

	hash := h.fingerprintService.Hash(req.Fingerprint)
	info, err := h.fingerprintService.Register(c.Request.Context(), hash, &userID, userAgent)
	if err != nil {
		if errors.Is(err, service.ErrDeviceBlocked) {
			response.Forbidden(c, "This device is not allowed")
			return
		}
		writeError(c, h.logger, err, "register device")
		return
	}
	response.Success(c, toDeviceView(info))
}

func (h *DeviceHandler) List(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	devices, err := h.fingerprintService.ListUserDevices(c.Request.Context(), userID, userID)
	if err != nil {
		writeError(c, h.logger, err, "list devices")
		return
	}
	views := make([]deviceView, 0, len(devices))
	for i := range devices {
		views = append(views, toDeviceView(&devices[i]))
	}
	response.Success(c, views)
}

type BlockDeviceRequest struct {
	Reason string `json:"reason" binding:"required,max=512"`
}

func (h *DeviceHandler) Block(c *gin.Context) {
	var req BlockDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.fingerprintService.Block(c.Request.Context(), c.Param("hash"), req.Reason); err != nil {
		writeError(c, h.logger, err, "block device")
		return
	}
	response.Success(c, nil)
}

func (h *DeviceHandler) Unblock(c *gin.Context) {
	if err := h.fingerprintService.Unblock(c.Request.Context(), c.Param("hash")); err != nil {
		writeError(c, h.logger, err, "unblock device")
		return
	}
	response.Success(c, nil)
}

type HighRiskQuery struct {
	MinRisk int `form:"min_risk,default=50" binding:"min=0,max=100"`
}

func (h *DeviceHandler) HighRisk(c *gin.Context) {
	var q HighRiskQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	devices, err := h.fingerprintService.HighRiskDevices(c.Request.Context(), q.MinRisk)
	if err != nil {
		writeError(c, h.logger, err, "list high risk devices")
		return
	}
	response.Success(c, gin.H{"devices": devices, "generated_at": time.Now().UTC()})
}
