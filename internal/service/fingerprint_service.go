package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trustguard/engine/internal/events"
	"trustguard/engine/internal/metrics"
	"trustguard/engine/internal/model"
	"trustguard/engine/internal/repository"
	"trustguard/engine/internal/trust"
	"trustguard/engine/pkg/crypto"
)

const highRiskListLimit = 100

// DeviceInfo is the registry's view of one device.
type DeviceInfo struct {
	FingerprintHash string      `json:"fingerprint_hash"`
	UserIDs         []uuid.UUID `json:"user_ids"`
	AccountCount    int         `json:"account_count"`
	RiskScore       int         `json:"risk_score"`
	IsBlocked       bool        `json:"is_blocked"`
}

func deviceInfo(d *model.DeviceFingerprint) *DeviceInfo {
	ids := make([]uuid.UUID, len(d.UserIDs))
	copy(ids, d.UserIDs)
	return &DeviceInfo{
		FingerprintHash: d.FingerprintHash,
		UserIDs:         ids,
		AccountCount:    d.AccountCount,
		RiskScore:       d.RiskScore,
		IsBlocked:       d.IsBlocked,
	}
}

type FingerprintService interface {
	Hash(raw string) string
	// Register attaches userID (optional) to the device. A blocked device
	// returns ErrDeviceBlocked before anything is written.
	Register(ctx context.Context, hash string, userID *uuid.UUID, userAgent *string) (*DeviceInfo, error)
	// CheckRisk reports (0, false) for devices never seen.
	CheckRisk(ctx context.Context, hash string) (int, bool, error)
	Block(ctx context.Context, hash string, reason string) error
	// Unblock clears the block and halves the risk score.
	Unblock(ctx context.Context, hash string) error
	ListUserDevices(ctx context.Context, actorID, userID uuid.UUID) ([]DeviceInfo, error)
	HighRiskDevices(ctx context.Context, minRisk int) ([]DeviceInfo, error)
}

type fingerprintService struct {
	repo           repository.DeviceRepository
	tx             repository.Transactor
	publisher      events.Publisher
	clock          Clock
	logger         *zap.Logger
	autoBlockScore int
}

// NewFingerprintService builds the registry. autoBlockScore <= 0 disables
// automatic blocking.
func NewFingerprintService(
	repo repository.DeviceRepository,
	tx repository.Transactor,
	publisher events.Publisher,
	clock Clock,
	logger *zap.Logger,
	autoBlockScore int,
) FingerprintService {
	if clock == nil {
		clock = SystemClock
	}
	return &fingerprintService{
		repo:           repo,
		tx:             tx,
		publisher:      publisher,
		clock:          clock,
		logger:         logger,
		autoBlockScore: autoBlockScore,
	}
}

func (s *fingerprintService) Hash(raw string) string {
	return crypto.HashFingerprint(raw)
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func (s *fingerprintService) Register(ctx context.Context, hash string, userID *uuid.UUID, userAgent *string) (*DeviceInfo, error) {
	var (
		info        *DeviceInfo
		autoBlocked bool
	)
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		now := s.clock()
		device, err := s.repo.GetForUpdate(ctx, hash)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fresh := &model.DeviceFingerprint{
				FingerprintHash: hash,
				UserIDs:         model.UUIDSet{},
				UserAgent:       userAgent,
				LastSeenAt:      now,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if userID != nil {
				fresh.UserIDs = model.UUIDSet{*userID}
				fresh.AccountCount = 1
			}
			created, createErr := s.repo.Create(ctx, fresh)
			if createErr != nil {
				return fmt.Errorf("failed to create device: %w", createErr)
			}
			if created {
				s.logger.Info("new device fingerprint registered",
					zap.String("fingerprint_hash", shortHash(hash)),
					zap.Bool("anonymous", userID == nil),
				)
				info = deviceInfo(fresh)
				return nil
			}
			// A concurrent registration inserted the row first; attach to it.
			device, err = s.repo.GetForUpdate(ctx, hash)
		}
		if err != nil {
			return fmt.Errorf("failed to load device: %w", err)
		}

		if device.IsBlocked {
			info = deviceInfo(device)
			return ErrDeviceBlocked
		}

		device.LastSeenAt = now
		if userAgent != nil {
			device.UserAgent = userAgent
		}

		if userID != nil && !device.UserIDs.Contains(*userID) {
			prior := len(device.UserIDs)
			device.UserIDs = append(device.UserIDs, *userID)
			device.AccountCount = len(device.UserIDs)
			device.RiskScore = trust.RaiseRisk(device.RiskScore, prior)
			device.UpdatedAt = now

			if s.autoBlockScore > 0 && device.RiskScore >= s.autoBlockScore {
				reason := "risk score threshold reached"
				device.IsBlocked = true
				device.BlockReason = &reason
				device.BlockedAt = &now
				autoBlocked = true
			}

			s.logger.Info("device fingerprint updated",
				zap.String("fingerprint_hash", shortHash(hash)),
				zap.Int("account_count", device.AccountCount),
				zap.Int("risk_score", device.RiskScore),
			)
		}

		if err := s.repo.Save(ctx, device); err != nil {
			return fmt.Errorf("failed to save device: %w", err)
		}
		info = deviceInfo(device)
		return nil
	})
	if errors.Is(err, ErrDeviceBlocked) {
		return info, err
	}
	if err != nil {
		return nil, err
	}

	if autoBlocked {
		s.blocked(ctx, hash, "risk score threshold reached", info.RiskScore)
	}
	return info, nil
}

func (s *fingerprintService) CheckRisk(ctx context.Context, hash string) (int, bool, error) {
	device, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to check device risk: %w", err)
	}
	return device.RiskScore, device.IsBlocked, nil
}

func (s *fingerprintService) Block(ctx context.Context, hash string, reason string) error {
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		device, err := s.lock(ctx, hash)
		if err != nil {
			return err
		}
		now := s.clock()
		device.IsBlocked = true
		device.BlockReason = &reason
		device.BlockedAt = &now
		device.UpdatedAt = now
		return s.repo.Save(ctx, device)
	})
	if err != nil {
		return err
	}
	s.blocked(ctx, hash, reason, -1)
	return nil
}

func (s *fingerprintService) Unblock(ctx context.Context, hash string) error {
	return s.tx.Transaction(ctx, func(ctx context.Context) error {
		device, err := s.lock(ctx, hash)
		if err != nil {
			return err
		}
		device.IsBlocked = false
		device.BlockReason = nil
		device.BlockedAt = nil
		device.RiskScore /= 2
		device.UpdatedAt = s.clock()
		if err := s.repo.Save(ctx, device); err != nil {
			return err
		}
		s.logger.Info("device fingerprint unblocked",
			zap.String("fingerprint_hash", shortHash(hash)),
			zap.Int("risk_score", device.RiskScore),
		)
		return nil
	})
}

func (s *fingerprintService) ListUserDevices(ctx context.Context, actorID, userID uuid.UUID) ([]DeviceInfo, error) {
	if err := authorizeOwner(actorID, ownerPredicate(userID)); err != nil {
		return nil, err
	}
	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(devices))
	for i := range devices {
		if err := authorizeOwner(userID, &devices[i]); err != nil {
			continue
		}
		out = append(out, *deviceInfo(&devices[i]))
	}
	return out, nil
}

func (s *fingerprintService) HighRiskDevices(ctx context.Context, minRisk int) ([]DeviceInfo, error) {
	devices, err := s.repo.ListHighRisk(ctx, minRisk, highRiskListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list high risk devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(devices))
	for i := range devices {
		out = append(out, *deviceInfo(&devices[i]))
	}
	return out, nil
}

func (s *fingerprintService) lock(ctx context.Context, hash string) (*model.DeviceFingerprint, error) {
	device, err := s.repo.GetForUpdate(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to lock device: %w", err)
	}
	return device, nil
}

func (s *fingerprintService) blocked(ctx context.Context, hash, reason string, riskScore int) {
	metrics.DeviceBlocks.Inc()
	s.logger.Warn("device fingerprint blocked",
		zap.String("fingerprint_hash", shortHash(hash)),
		zap.String("reason", reason),
	)
	if s.publisher == nil {
		return
	}
	attrs := map[string]interface{}{"reason": reason}
	if riskScore >= 0 {
		attrs["risk_score"] = riskScore
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeDeviceBlocked,
		Key:        hash,
		OccurredAt: s.clock(),
		Attributes: attrs,
	})
	if err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", events.TypeDeviceBlocked), zap.Error(err))
	}
}
