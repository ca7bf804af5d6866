package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trustguard/engine/internal/model"
)

type pgDeviceRepository struct {
	db *gorm.DB
}

func NewPGDeviceRepository(db *gorm.DB) DeviceRepository {
	return &pgDeviceRepository{db: db}
}

func (r *pgDeviceRepository) Create(ctx context.Context, device *model.DeviceFingerprint) (bool, error) {
	result := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint_hash"}}, DoNothing: true}).
		Create(device)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *pgDeviceRepository) GetByHash(ctx context.Context, hash string) (*model.DeviceFingerprint, error) {
	var device model.DeviceFingerprint
	if err := conn(ctx, r.db).First(&device, "fingerprint_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *pgDeviceRepository) GetForUpdate(ctx context.Context, hash string) (*model.DeviceFingerprint, error) {
	var device model.DeviceFingerprint
	if err := conn(ctx, r.db).Clauses(forUpdate).First(&device, "fingerprint_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *pgDeviceRepository) Save(ctx context.Context, device *model.DeviceFingerprint) error {
	return conn(ctx, r.db).Save(device).Error
}

func (r *pgDeviceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.DeviceFingerprint, error) {
	needle, err := json.Marshal([]uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	var devices []model.DeviceFingerprint
	if err := conn(ctx, r.db).
		Where("user_ids @> ?::jsonb", string(needle)).
		Order("last_seen_at DESC").
		Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *pgDeviceRepository) ListHighRisk(ctx context.Context, minRisk int, limit int) ([]model.DeviceFingerprint, error) {
	var devices []model.DeviceFingerprint
	if err := conn(ctx, r.db).
		Where("risk_score >= ? AND is_blocked = ?", minRisk, false).
		Order("risk_score DESC").
		Limit(limit).
		Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}
