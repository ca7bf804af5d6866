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
)

type TrustService interface {
	// Initialize creates the record at account creation. Repeated calls are no-ops.
	Initialize(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error)
	// Level resolves the cached level; users without a record are New.
	Level(ctx context.Context, userID uuid.UUID) (trust.Level, error)
	RecordActivity(ctx context.Context, userID uuid.UUID, activity trust.Activity) error
	RecomputeLevel(ctx context.Context, userID uuid.UUID) (trust.Level, error)
	AddStrike(ctx context.Context, userID uuid.UUID, reason string) (int, error)
	RecordFlag(ctx context.Context, userID uuid.UUID) error
	IsBanned(ctx context.Context, userID uuid.UUID) (bool, error)
	// EnsureNotBanned returns ErrAccountSuspended without the expiry.
	EnsureNotBanned(ctx context.Context, userID uuid.UUID) error
	// SetLevel is the administrative override. Verified is stored as an
	// override; any other level clears it and the record is recomputed, so the
	// returned level may differ from the one requested.
	SetLevel(ctx context.Context, userID uuid.UUID, level trust.Level) (trust.Level, error)
	LevelStats(ctx context.Context) (map[trust.Level]int64, error)
}

type trustService struct {
	repo      repository.TrustScoreRepository
	tx        repository.Transactor
	publisher events.Publisher
	clock     Clock
	logger    *zap.Logger
}

func NewTrustService(
	repo repository.TrustScoreRepository,
	tx repository.Transactor,
	publisher events.Publisher,
	clock Clock,
	logger *zap.Logger,
) TrustService {
	if clock == nil {
		clock = SystemClock
	}
	return &trustService{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

func (s *trustService) Initialize(ctx context.Context, userID uuid.UUID) error {
	now := s.clock()
	score := &model.TrustScore{
		UserID:     userID,
		TrustLevel: trust.LevelNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, score); err != nil {
		return fmt.Errorf("initialize trust score: %w", err)
	}
	return nil
}

func (s *trustService) Get(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	score, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrustRecordNotFound
		}
		return nil, fmt.Errorf("failed to load trust score: %w", err)
	}
	return score, nil
}

func (s *trustService) Level(ctx context.Context, userID uuid.UUID) (trust.Level, error) {
	score, err := s.Get(ctx, userID)
	if errors.Is(err, ErrTrustRecordNotFound) {
		return trust.LevelNew, nil
	}
	if err != nil {
		return trust.LevelNew, err
	}
	return score.TrustLevel, nil
}

func (s *trustService) RecordActivity(ctx context.Context, userID uuid.UUID, activity trust.Activity) error {
	if _, err := trust.ParseActivity(string(activity)); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownActivityKind, activity)
	}
	// Flags carry their own counter and strike side rule.
	if activity == trust.ActivityFlagReceived {
		return s.RecordFlag(ctx, userID)
	}

	counter, _ := model.CounterFor(activity)
	found, err := s.repo.AddPoints(ctx, userID, activity.Points(), counter, s.clock())
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	if !found {
		return ErrTrustRecordNotFound
	}

	if activity.TriggersRecompute() {
		if _, err := s.RecomputeLevel(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *trustService) RecomputeLevel(ctx context.Context, userID uuid.UUID) (trust.Level, error) {
	var (
		level    trust.Level
		previous trust.Level
	)
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		score, err := s.lock(ctx, userID)
		if err != nil {
			return err
		}
		previous = score.TrustLevel
		level = trust.ComputeLevel(score.Metrics(s.clock()))
		if level == previous {
			return nil
		}
		score.TrustLevel = level
		score.UpdatedAt = s.clock()
		return s.save(ctx, score)
	})
	if err != nil {
		return trust.LevelNew, err
	}

	if level != previous {
		s.logger.Info("trust level changed",
			zap.String("user_id", userID.String()),
			zap.Stringer("from", previous),
			zap.Stringer("to", level),
		)
		s.publish(ctx, events.TypeLevelChanged, userID.String(), map[string]interface{}{
			"from": previous.String(),
			"to":   level.String(),
		})
	}
	return level, nil
}

// strikeOutcome reports what applyStrike did to a locked record.
type strikeOutcome struct {
	strikes int
	banned  bool
	from    trust.Level
}

// applyStrike mutates a locked record: strike and flag counters, the point
// penalty, and the escalating ban. The caller persists the record.
func (s *trustService) applyStrike(score *model.TrustScore) strikeOutcome {
	now := s.clock()
	from := score.TrustLevel
	score.Strikes++
	score.FlagsReceived++
	score.AddPoints(-trust.Policy.StrikePenalty)

	out := strikeOutcome{strikes: score.Strikes, from: from}
	if d, ok := trust.BanDuration(score.Strikes); ok {
		until := now.Add(d)
		score.BannedUntil = &until
		score.TrustLevel = trust.LevelNew
		out.banned = true
	}
	score.TrustLevel = trust.ComputeLevel(score.Metrics(now))
	score.UpdatedAt = now
	return out
}

func (s *trustService) AddStrike(ctx context.Context, userID uuid.UUID, reason string) (int, error) {
	var (
		out   strikeOutcome
		score *model.TrustScore
	)
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		score, err = s.lock(ctx, userID)
		if err != nil {
			return err
		}
		out = s.applyStrike(score)
		return s.save(ctx, score)
	})
	if err != nil {
		return 0, err
	}

	s.afterStrike(ctx, score, out, reason)
	return out.strikes, nil
}

func (s *trustService) RecordFlag(ctx context.Context, userID uuid.UUID) error {
	var (
		out      strikeOutcome
		struck   bool
		score    *model.TrustScore
		previous trust.Level
	)
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		score, err = s.lock(ctx, userID)
		if err != nil {
			return err
		}
		now := s.clock()
		previous = score.TrustLevel
		score.FlagsReceived++
		score.AddPoints(-trust.Policy.FlagPenalty)
		score.LastActivityAt = &now

		if every := trust.Policy.FlagStrikeEvery; every > 0 && score.FlagsReceived%every == 0 {
			out = s.applyStrike(score)
			struck = true
		} else {
			score.TrustLevel = trust.ComputeLevel(score.Metrics(now))
			score.UpdatedAt = now
		}
		return s.save(ctx, score)
	})
	if err != nil {
		return err
	}

	if struck {
		s.afterStrike(ctx, score, out, "excessive flags received")
	} else if score.TrustLevel != previous {
		s.publish(ctx, events.TypeLevelChanged, userID.String(), map[string]interface{}{
			"from": previous.String(),
			"to":   score.TrustLevel.String(),
		})
	}
	return nil
}

func (s *trustService) afterStrike(ctx context.Context, score *model.TrustScore, out strikeOutcome, reason string) {
	metrics.Strikes.Inc()
	s.logger.Info("strike recorded",
		zap.String("user_id", score.UserID.String()),
		zap.Int("strikes", out.strikes),
		zap.String("reason", reason),
	)
	if score.TrustLevel != out.from {
		s.publish(ctx, events.TypeLevelChanged, score.UserID.String(), map[string]interface{}{
			"from": out.from.String(),
			"to":   score.TrustLevel.String(),
		})
	}
	if !out.banned {
		return
	}

	metrics.Bans.Inc()
	s.logger.Warn("user automatically banned due to strikes",
		zap.String("user_id", score.UserID.String()),
		zap.Int("strikes", out.strikes),
		zap.Timep("banned_until", score.BannedUntil),
		zap.String("reason", reason),
	)
	s.publish(ctx, events.TypeBanImposed, score.UserID.String(), map[string]interface{}{
		"strikes":      out.strikes,
		"banned_until": score.BannedUntil,
		"reason":       reason,
	})
}

func (s *trustService) IsBanned(ctx context.Context, userID uuid.UUID) (bool, error) {
	score, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check ban status: %w", err)
	}
	return score.IsBanned(s.clock()), nil
}

func (s *trustService) EnsureNotBanned(ctx context.Context, userID uuid.UUID) error {
	banned, err := s.IsBanned(ctx, userID)
	if err != nil {
		return err
	}
	if banned {
		return ErrAccountSuspended
	}
	return nil
}

func (s *trustService) SetLevel(ctx context.Context, userID uuid.UUID, level trust.Level) (trust.Level, error) {
	if !level.Valid() {
		return trust.LevelNew, ErrInvalidTrustLevel
	}
	var previous, effective trust.Level
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		score, err := s.lock(ctx, userID)
		if err != nil {
			return err
		}
		now := s.clock()
		previous = score.TrustLevel
		score.VerifiedOverride = level == trust.LevelVerified
		score.TrustLevel = trust.ComputeLevel(score.Metrics(now))
		score.UpdatedAt = now
		effective = score.TrustLevel
		return s.save(ctx, score)
	})
	if err != nil {
		return trust.LevelNew, err
	}

	s.logger.Info("trust level set by administrator",
		zap.String("user_id", userID.String()),
		zap.Stringer("requested", level),
		zap.Stringer("level", effective),
	)
	if effective != previous {
		s.publish(ctx, events.TypeLevelChanged, userID.String(), map[string]interface{}{
			"from": previous.String(),
			"to":   effective.String(),
		})
	}
	return effective, nil
}

func (s *trustService) LevelStats(ctx context.Context) (map[trust.Level]int64, error) {
	stats, err := s.repo.CountByLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count trust levels: %w", err)
	}
	return stats, nil
}

func (s *trustService) lock(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	score, err := s.repo.GetForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrustRecordNotFound
		}
		return nil, fmt.Errorf("failed to lock trust score: %w", err)
	}
	return score, nil
}

func (s *trustService) save(ctx context.Context, score *model.TrustScore) error {
	if err := s.repo.Save(ctx, score); err != nil {
		return fmt.Errorf("failed to save trust score: %w", err)
	}
	return nil
}

func (s *trustService) publish(ctx context.Context, eventType, key string, attrs map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		Key:        key,
		OccurredAt: s.clock(),
		Attributes: attrs,
	})
	if err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
