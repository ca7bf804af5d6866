package service

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const (
	inviteListLimit     = 50
	maxInviteTreeDepth  = 10
	inviteTypeStandard  = "standard"
	defaultValidityDays = 7
)

type InviteStats struct {
	Level             trust.Level `json:"trust_level"`
	InvitesSent       int         `json:"invites_sent"`
	SuccessfulInvites int         `json:"successful_invites"`
	RemainingInvites  int         `json:"remaining_invites"`
	MaxInvites        int         `json:"max_invites"`
}

type InviteService interface {
	CreateInvite(ctx context.Context, userID uuid.UUID, validityDays int) (*model.InviteCode, error)
	// ConsumeInvite redeems code for newUserID and returns the inviter.
	ConsumeInvite(ctx context.Context, code string, newUserID uuid.UUID) (uuid.UUID, error)
	// RevokeInvite reports false when the code is unknown, not owned by
	// userID, or already invalid.
	RevokeInvite(ctx context.Context, code string, userID uuid.UUID) (bool, error)
	ListInvites(ctx context.Context, userID uuid.UUID) ([]model.InviteCode, error)
	Stats(ctx context.Context, userID uuid.UUID) (*InviteStats, error)
	InviteTree(ctx context.Context, userID uuid.UUID, depth int) ([]model.InviteRelationship, error)
}

// CodeGenerator produces candidate invite codes.
type CodeGenerator func() (string, error)

func defaultCodeGenerator() (string, error) {
	return crypto.GenerateInviteCode(trust.Policy.InviteCodeLength)
}

type InviteOptions struct {
	DefaultValidityDays int
	MaxUses             int
	Generator           CodeGenerator
}

type inviteService struct {
	inviteRepo repository.InviteCodeRepository
	relRepo    repository.InviteRelationshipRepository
	trustRepo  repository.TrustScoreRepository
	tx         repository.Transactor
	publisher  events.Publisher
	clock      Clock
	logger     *zap.Logger
	opts       InviteOptions
}

func NewInviteService(
	inviteRepo repository.InviteCodeRepository,
	relRepo repository.InviteRelationshipRepository,
	trustRepo repository.TrustScoreRepository,
	tx repository.Transactor,
	publisher events.Publisher,
	clock Clock,
	logger *zap.Logger,
	opts InviteOptions,
) InviteService {
	if clock == nil {
		clock = SystemClock
	}
	if opts.DefaultValidityDays <= 0 {
		opts.DefaultValidityDays = defaultValidityDays
	}
	if opts.MaxUses <= 0 {
		opts.MaxUses = 1
	}
	if opts.Generator == nil {
		opts.Generator = defaultCodeGenerator
	}
	return &inviteService{
		inviteRepo: inviteRepo,
		relRepo:    relRepo,
		trustRepo:  trustRepo,
		tx:         tx,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
		opts:       opts,
	}
}

func (s *inviteService) CreateInvite(ctx context.Context, userID uuid.UUID, validityDays int) (*model.InviteCode, error) {
	if validityDays <= 0 {
		validityDays = s.opts.DefaultValidityDays
	}

	var invite *model.InviteCode
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		score, err := s.lockScore(ctx, userID)
		if err != nil {
			return err
		}

		quota := trust.InviteQuotaFor(score.TrustLevel)
		if score.InvitesSent >= quota {
			return &InviteLimitError{Level: score.TrustLevel, Quota: quota}
		}

		code, err := s.generateUniqueCode(ctx)
		if err != nil {
			return err
		}

		now := s.clock()
		invite = &model.InviteCode{
			Code:       code,
			CreatedBy:  userID,
			ExpiresAt:  now.Add(time.Duration(validityDays) * 24 * time.Hour),
			InviteType: inviteTypeStandard,
			MaxUses:    s.opts.MaxUses,
			IsValid:    true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.inviteRepo.Create(ctx, invite); err != nil {
			return fmt.Errorf("create invite code: %w", err)
		}

		score.InvitesSent++
		score.UpdatedAt = now
		if err := s.trustRepo.Save(ctx, score); err != nil {
			return fmt.Errorf("update invite count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invite code created",
		zap.String("user_id", userID.String()),
		zap.String("code", invite.Code),
	)
	return invite, nil
}

func (s *inviteService) generateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < trust.Policy.InviteCodeTries; i++ {
		candidate, err := s.opts.Generator()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		exists, err := s.inviteRepo.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check invite code: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, trust.Policy.InviteCodeTries)
}

func (s *inviteService) ConsumeInvite(ctx context.Context, code string, newUserID uuid.UUID) (uuid.UUID, error) {
	var inviterID uuid.UUID
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		invite, err := s.inviteRepo.GetByCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInviteNotFound
			}
			return fmt.Errorf("lock invite code: %w", err)
		}

		now := s.clock()
		switch {
		case invite.Exhausted():
			return ErrInviteExhausted
		case !invite.IsValid:
			return ErrInviteRevoked
		case invite.Expired(now):
			return ErrInviteExpired
		case invite.OwnedBy(newUserID):
			return ErrInviteSelfRedeem
		}

		already, err := s.relRepo.ExistsForInvitee(ctx, newUserID)
		if err != nil {
			return fmt.Errorf("check invitee: %w", err)
		}
		if already {
			return ErrAlreadyInvited
		}

		invite.UseCount++
		invite.UsedBy = &newUserID
		invite.UsedAt = &now
		invite.IsValid = !invite.Exhausted()
		invite.UpdatedAt = now
		if err := s.inviteRepo.Save(ctx, invite); err != nil {
			return fmt.Errorf("update invite code: %w", err)
		}

		if err := s.relRepo.Create(ctx, &model.InviteRelationship{
			InviterID:  invite.CreatedBy,
			InviteeID:  newUserID,
			InviteCode: invite.Code,
			InvitedAt:  now,
		}); err != nil {
			return fmt.Errorf("record invite relationship: %w", err)
		}

		inviter, err := s.lockScore(ctx, invite.CreatedBy)
		if err != nil {
			return err
		}
		inviter.SuccessfulInvites++
		inviter.AddPoints(trust.Policy.InviteReward)
		inviter.TrustLevel = trust.ComputeLevel(inviter.Metrics(now))
		inviter.UpdatedAt = now
		if err := s.trustRepo.Save(ctx, inviter); err != nil {
			return fmt.Errorf("reward inviter: %w", err)
		}

		inviterID = invite.CreatedBy
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	metrics.InvitesConsumed.Inc()
	s.logger.Info("invite code consumed",
		zap.String("inviter_id", inviterID.String()),
		zap.String("invitee_id", newUserID.String()),
		zap.String("code", code),
	)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.Event{
			Type:       events.TypeInviteConsumed,
			Key:        inviterID.String(),
			OccurredAt: s.clock(),
			Attributes: map[string]interface{}{"invitee_id": newUserID.String(), "code": code},
		}); err != nil {
			s.logger.Warn("failed to publish event", zap.String("type", events.TypeInviteConsumed), zap.Error(err))
		}
	}
	return inviterID, nil
}

func (s *inviteService) RevokeInvite(ctx context.Context, code string, userID uuid.UUID) (bool, error) {
	revoked := false
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		invite, err := s.inviteRepo.GetByCodeForUpdate(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("lock invite code: %w", err)
		}
		if authorizeOwner(userID, invite) != nil || !invite.IsValid {
			return nil
		}
		invite.IsValid = false
		invite.UpdatedAt = s.clock()
		if err := s.inviteRepo.Save(ctx, invite); err != nil {
			return fmt.Errorf("revoke invite code: %w", err)
		}
		revoked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *inviteService) ListInvites(ctx context.Context, userID uuid.UUID) ([]model.InviteCode, error) {
	codes, err := s.inviteRepo.ListByCreator(ctx, userID, inviteListLimit)
	if err != nil {
		return nil, fmt.Errorf("list invite codes: %w", err)
	}
	return codes, nil
}

func (s *inviteService) Stats(ctx context.Context, userID uuid.UUID) (*InviteStats, error) {
	score, err := s.trustRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrustRecordNotFound
		}
		return nil, fmt.Errorf("load trust score: %w", err)
	}
	quota := trust.InviteQuotaFor(score.TrustLevel)
	remaining := quota - score.InvitesSent
	if remaining < 0 {
		remaining = 0
	}
	return &InviteStats{
		Level:             score.TrustLevel,
		InvitesSent:       score.InvitesSent,
		SuccessfulInvites: score.SuccessfulInvites,
		RemainingInvites:  remaining,
		MaxInvites:        quota,
	}, nil
}

// InviteTree walks the invite forest breadth first from userID, one query per
// level, stopping after depth levels.
func (s *inviteService) InviteTree(ctx context.Context, userID uuid.UUID, depth int) ([]model.InviteRelationship, error) {
	if depth > maxInviteTreeDepth {
		depth = maxInviteTreeDepth
	}

	var out []model.InviteRelationship
	visited := map[uuid.UUID]bool{userID: true}
	frontier := []uuid.UUID{userID}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		edges, err := s.relRepo.ListByInviters(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("load invite edges: %w", err)
		}
		next := make([]uuid.UUID, 0, len(edges))
		for _, e := range edges {
			if visited[e.InviteeID] {
				continue
			}
			visited[e.InviteeID] = true
			out = append(out, e)
			next = append(next, e.InviteeID)
		}
		frontier = next
	}
	return out, nil
}

func (s *inviteService) lockScore(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	score, err := s.trustRepo.GetForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrustRecordNotFound
		}
		return nil, fmt.Errorf("lock trust score: %w", err)
	}
	return score, nil
}
