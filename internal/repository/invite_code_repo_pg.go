package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trustguard/engine/internal/model"
)

type pgInviteCodeRepository struct {
	db *gorm.DB
}

func NewPGInviteCodeRepository(db *gorm.DB) InviteCodeRepository {
	return &pgInviteCodeRepository{db: db}
}

func (r *pgInviteCodeRepository) Create(ctx context.Context, code *model.InviteCode) error {
	return conn(ctx, r.db).Create(code).Error
}

func (r *pgInviteCodeRepository) GetByCode(ctx context.Context, code string) (*model.InviteCode, error) {
	var inviteCode model.InviteCode
	if err := conn(ctx, r.db).Where("code = ?", code).First(&inviteCode).Error; err != nil {
		return nil, err
	}
	return &inviteCode, nil
}

func (r *pgInviteCodeRepository) GetByCodeForUpdate(ctx context.Context, code string) (*model.InviteCode, error) {
	var inviteCode model.InviteCode
	if err := conn(ctx, r.db).Clauses(forUpdate).Where("code = ?", code).First(&inviteCode).Error; err != nil {
		return nil, err
	}
	return &inviteCode, nil
}

func (r *pgInviteCodeRepository) Exists(ctx context.Context, code string) (bool, error) {
	var n int64
	if err := conn(ctx, r.db).Model(&model.InviteCode{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *pgInviteCodeRepository) Save(ctx context.Context, code *model.InviteCode) error {
	return conn(ctx, r.db).Save(code).Error
}

func (r *pgInviteCodeRepository) ListByCreator(ctx context.Context, userID uuid.UUID, limit int) ([]model.InviteCode, error) {
	var codes []model.InviteCode
	if err := conn(ctx, r.db).
		Where("created_by = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

type pgInviteRelationshipRepository struct {
	db *gorm.DB
}

func NewPGInviteRelationshipRepository(db *gorm.DB) InviteRelationshipRepository {
	return &pgInviteRelationshipRepository{db: db}
}

func (r *pgInviteRelationshipRepository) Create(ctx context.Context, rel *model.InviteRelationship) error {
	return conn(ctx, r.db).Create(rel).Error
}

func (r *pgInviteRelationshipRepository) ExistsForInvitee(ctx context.Context, inviteeID uuid.UUID) (bool, error) {
	var n int64
	if err := conn(ctx, r.db).Model(&model.InviteRelationship{}).Where("invitee_id = ?", inviteeID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *pgInviteRelationshipRepository) ListByInviters(ctx context.Context, inviterIDs []uuid.UUID) ([]model.InviteRelationship, error) {
	if len(inviterIDs) == 0 {
		return nil, nil
	}
	var rels []model.InviteRelationship
	if err := conn(ctx, r.db).
		Where("inviter_id IN ?", inviterIDs).
		Order("invited_at ASC").
		Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}
