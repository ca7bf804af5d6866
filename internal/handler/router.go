package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trustguard/engine/internal/config"
	"trustguard/engine/internal/handler/middleware"
	"trustguard/engine/internal/service"
	"trustguard/engine/internal/trust"
	jwtpkg "trustguard/engine/pkg/jwt"
)

type Services struct {
	Trust       service.TrustService
	RateLimiter service.RateLimiter
	Fingerprint service.FingerprintService
	Invite      service.InviteService
}

func SetupRouter(cfg *config.Config, logger *zap.Logger, jwtManager *jwtpkg.Manager, svc Services) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	trustHandler := NewTrustHandler(svc.Trust, svc.RateLimiter, logger)
	deviceHandler := NewDeviceHandler(svc.Fingerprint, logger)
	inviteHandler := NewInviteHandler(svc.Invite, svc.Trust, logger)
	adminHandler := NewAdminHandler(svc.Trust, svc.Invite, logger)

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rateCheck := func(action trust.Action) gin.HandlerFunc {
		return middleware.RateCheck(svc.RateLimiter, svc.Trust, action, logger)
	}

	// Authenticated routes
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(jwtManager))
	protected.Use(middleware.BanCheck(svc.Trust, logger))
	{
		protected.GET("/trust/me", trustHandler.Me)

		protected.POST("/devices", deviceHandler.Register)
		protected.GET("/devices", deviceHandler.List)

		// Upstream services ask before acting and record once the action succeeded.
		for _, action := range trust.GatedActions {
			path := "/actions/" + string(action)
			protected.POST(path, rateCheck(action), trustHandler.Admit)
			protected.POST(path+"/record", trustHandler.Record(action))
		}

		protected.POST("/invites", inviteHandler.Create)
		protected.GET("/invites", inviteHandler.List)
		protected.GET("/invites/stats", inviteHandler.Stats)
		protected.DELETE("/invites/:code", inviteHandler.Revoke)
		protected.POST("/invites/redeem", middleware.IPRateLimit(svc.RateLimiter, trust.ActionSignup, logger), inviteHandler.Redeem)
	}

	// Admin routes (JWT + admin check)
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(jwtManager))
	admin.Use(middleware.AdminAuth(cfg.Admin.UserIDs, logger))
	{
		admin.POST("/users/:user_id/trust", adminHandler.InitializeUser)
		admin.GET("/users/:user_id/trust", adminHandler.GetUser)
		admin.POST("/users/:user_id/activities", adminHandler.RecordActivity)
		admin.POST("/users/:user_id/strikes", adminHandler.AddStrike)
		admin.POST("/users/:user_id/flags", adminHandler.RecordFlag)
		admin.PUT("/users/:user_id/level", adminHandler.SetLevel)
		admin.POST("/users/:user_id/level/recompute", adminHandler.Recompute)
		admin.GET("/users/:user_id/invite-tree", adminHandler.InviteTree)
		admin.GET("/trust/stats", adminHandler.LevelStats)

		admin.GET("/devices/high-risk", deviceHandler.HighRisk)
		admin.POST("/devices/:hash/block", deviceHandler.Block)
		admin.POST("/devices/:hash/unblock", deviceHandler.Unblock)
	}

	return r
}
