package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trustguard/engine/internal/config"
	"trustguard/engine/internal/events"
	"trustguard/engine/internal/handler"
	"trustguard/engine/internal/model"
	"trustguard/engine/internal/repository"
	"trustguard/engine/internal/service"
	jwtpkg "trustguard/engine/pkg/jwt"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func main() {
	// 1. Load configuration
	path := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 3. Connect to PostgreSQL
	db, err := config.NewPostgresDB(cfg.Database.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}

	// 4. Auto-migrate if enabled
	if cfg.Database.Postgres.AutoMigrate {
		if err := model.AutoMigrate(db); err != nil {
			logger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		logger.Info("database migration completed")
	}

	// 5. Initialize counter store (Redis or in-memory)
	var counters repository.CounterStore
	switch cfg.Counter.Backend {
	case "redis":
		redisClient, err := config.NewRedisClient(cfg.Database.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		counters = repository.NewRedisCounterStore(redisClient)
		logger.Info("using Redis counter store")
	case "memory":
		counters = repository.NewMemoryCounterStore()
		logger.Warn("using in-memory counter store; quotas are per instance")
	}

	// 6. Event publisher
	var publisher events.Publisher
	if cfg.Events.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.WriteTimeout)
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	} else {
		publisher = events.NewLogPublisher(logger)
	}
	defer publisher.Close()

	// 7. Initialize repositories
	tx := repository.NewTransactor(db)
	trustRepo := repository.NewPGTrustScoreRepository(db)
	deviceRepo := repository.NewPGDeviceRepository(db)
	inviteRepo := repository.NewPGInviteCodeRepository(db)
	relRepo := repository.NewPGInviteRelationshipRepository(db)

	// 8. Initialize services
	clock := service.SystemClock
	svc := handler.Services{
		Trust:       service.NewTrustService(trustRepo, tx, publisher, clock, logger),
		RateLimiter: service.NewRateLimiter(counters, clock, logger),
		Fingerprint: service.NewFingerprintService(deviceRepo, tx, publisher, clock, logger, cfg.Trust.AutoBlockRiskScore),
		Invite: service.NewInviteService(inviteRepo, relRepo, trustRepo, tx, publisher, clock, logger, service.InviteOptions{
			DefaultValidityDays: cfg.Invite.DefaultValidityDays,
			MaxUses:             cfg.Invite.MaxUses,
		}),
	}

	// 9. Token validation only; tokens are minted by the identity service.
	jwtManager := jwtpkg.NewManager(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)

	// 10. Setup router
	router := handler.SetupRouter(cfg, logger, jwtManager, svc)

	// 11. Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 12. Start server with graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited gracefully")
}
