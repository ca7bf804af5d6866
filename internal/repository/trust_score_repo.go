package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trustguard/engine/internal/model"
	"trustguard/engine/internal/trust"
)

type TrustScoreRepository interface {
	// Create inserts score unless a record for the user already exists.
	Create(ctx context.Context, score *model.TrustScore) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error)
	Save(ctx context.Context, score *model.TrustScore) error
	// AddPoints atomically applies GREATEST(0, points + delta) and bumps
	// counter when it is non-empty. It reports false when no record exists.
	AddPoints(ctx context.Context, userID uuid.UUID, delta int, counter model.ActivityCounter, at time.Time) (bool, error)
	CountByLevel(ctx context.Context) (map[trust.Level]int64, error)
}
