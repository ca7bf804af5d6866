package repository

import (
	"context"

	"github.com/google/uuid"

	"trustguard/engine/internal/model"
)

type InviteCodeRepository interface {
	Create(ctx context.Context, code *model.InviteCode) error
	GetByCode(ctx context.Context, code string) (*model.InviteCode, error)
	GetByCodeForUpdate(ctx context.Context, code string) (*model.InviteCode, error)
	Exists(ctx context.Context, code string) (bool, error)
	Save(ctx context.Context, code *model.InviteCode) error
	ListByCreator(ctx context.Context, userID uuid.UUID, limit int) ([]model.InviteCode, error)
}

type InviteRelationshipRepository interface {
	Create(ctx context.Context, rel *model.InviteRelationship) error
	ExistsForInvitee(ctx context.Context, inviteeID uuid.UUID) (bool, error)
	// ListByInviters returns every edge whose inviter is in inviterIDs.
	ListByInviters(ctx context.Context, inviterIDs []uuid.UUID) ([]model.InviteRelationship, error)
}
