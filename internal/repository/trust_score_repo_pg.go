package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trustguard/engine/internal/model"
	"trustguard/engine/internal/trust"
)

type pgTrustScoreRepository struct {
	db *gorm.DB
}

func NewPGTrustScoreRepository(db *gorm.DB) TrustScoreRepository {
	return &pgTrustScoreRepository{db: db}
}

func (r *pgTrustScoreRepository) Create(ctx context.Context, score *model.TrustScore) error {
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(score).Error
}

func (r *pgTrustScoreRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	var score model.TrustScore
	if err := conn(ctx, r.db).First(&score, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

func (r *pgTrustScoreRepository) GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	var score model.TrustScore
	if err := conn(ctx, r.db).Clauses(forUpdate).First(&score, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

func (r *pgTrustScoreRepository) Save(ctx context.Context, score *model.TrustScore) error {
	return conn(ctx, r.db).Save(score).Error
}

var activityColumns = map[model.ActivityCounter]bool{
	model.CounterPosts:         true,
	model.CounterComments:      true,
	model.CounterLikesReceived: true,
	model.CounterFollowers:     true,
}

func (r *pgTrustScoreRepository) AddPoints(ctx context.Context, userID uuid.UUID, delta int, counter model.ActivityCounter, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"trust_points":     gorm.Expr("GREATEST(0, trust_points + ?)", delta),
		"last_activity_at": at,
		"updated_at":       at,
	}
	if counter != "" {
		if !activityColumns[counter] {
			return false, fmt.Errorf("unknown activity counter %q", counter)
		}
		col := string(counter)
		updates[col] = gorm.Expr(col + " + 1")
	}

	res := conn(ctx, r.db).
		Model(&model.TrustScore{}).
		Where("user_id = ?", userID).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *pgTrustScoreRepository) CountByLevel(ctx context.Context) (map[trust.Level]int64, error) {
	var rows []struct {
		TrustLevel int
		Count      int64
	}
	if err := conn(ctx, r.db).
		Model(&model.TrustScore{}).
		Select("trust_level, COUNT(*) AS count").
		Group("trust_level").
		Order("trust_level").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := make(map[trust.Level]int64, len(trust.Levels))
	for _, l := range trust.Levels {
		stats[l] = 0
	}
	for _, row := range rows {
		stats[trust.LevelFromInt(row.TrustLevel)] += row.Count
	}
	return stats, nil
}
