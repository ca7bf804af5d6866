package repository

import (
	"context"

	"github.com/google/uuid"

	"trustguard/engine/internal/model"
)

type DeviceRepository interface {
	// Create inserts device and reports whether a row was written. A concurrent
	// insert of the same hash is a no-op that reports false.
	Create(ctx context.Context, device *model.DeviceFingerprint) (bool, error)
	GetByHash(ctx context.Context, hash string) (*model.DeviceFingerprint, error)
	GetForUpdate(ctx context.Context, hash string) (*model.DeviceFingerprint, error)
	Save(ctx context.Context, device *model.DeviceFingerprint) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.DeviceFingerprint, error)
	ListHighRisk(ctx context.Context, minRisk int, limit int) ([]model.DeviceFingerprint, error)
}
