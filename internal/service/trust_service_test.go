package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustguard/engine/internal/events"
	"trustguard/engine/internal/model"
	"trustguard/engine/internal/trust"
)

type trustFixture struct {
	svc   TrustService
	repo  *fakeTrustRepo
	clock *testClock
	pub   *recordingPublisher
}

func newTrustFixture() *trustFixture {
	f := &trustFixture{
		repo:  newFakeTrustRepo(),
		clock: newTestClock(),
		pub:   &recordingPublisher{},
	}
	f.svc = NewTrustService(f.repo, &serialTransactor{}, f.pub, f.clock.Now, testLogger)
	return f
}

func TestTrustService_InitializeIsIdempotent(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.svc.Initialize(ctx, id))
	_, err := f.repo.AddPoints(ctx, id, 5, model.CounterPosts, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.svc.Initialize(ctx, id))

	score, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, score.TrustPoints, "second initialize must not reset the record")
	assert.Equal(t, trust.LevelNew, score.TrustLevel)
}

func TestTrustService_LevelDefaultsToNew(t *testing.T) {
	f := newTrustFixture()
	level, err := f.svc.Level(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, trust.LevelNew, level)

	_, err = f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTrustRecordNotFound)
}

func TestTrustService_StrikeEscalation(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, f.svc.Initialize(ctx, id))

	expect := []struct {
		strikes int
		ban     time.Duration
	}{
		{1, 0},
		{2, 0},
		{3, 7 * trust.Day},
		{4, 30 * trust.Day},
		{5, 365 * trust.Day},
		{6, 365 * trust.Day},
	}
	for _, e := range expect {
		n, err := f.svc.AddStrike(ctx, id, "spam")
		require.NoError(t, err)
		require.Equal(t, e.strikes, n)

		score := f.repo.get(id)
		if e.ban == 0 {
			assert.Nil(t, score.BannedUntil, "strike %d", e.strikes)
			continue
		}
		require.NotNil(t, score.BannedUntil, "strike %d", e.strikes)
		assert.Equal(t, f.clock.Now().Add(e.ban), *score.BannedUntil)
		assert.Equal(t, trust.LevelNew, score.TrustLevel)
	}

	score := f.repo.get(id)
	assert.Equal(t, 6, score.FlagsReceived)
	assert.Zero(t, score.TrustPoints)
	assert.Contains(t, f.pub.types(), events.TypeBanImposed)
}

func TestTrustService_StrikePenaltyFloorsAtZero(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	f.repo.put(model.TrustScore{UserID: id, TrustPoints: 120, CreatedAt: f.clock.Now()})

	_, err := f.svc.AddStrike(ctx, id, "abuse")
	require.NoError(t, err)
	assert.Equal(t, 70, f.repo.get(id).TrustPoints)

	_, err = f.svc.AddStrike(ctx, id, "abuse")
	require.NoError(t, err)
	_, err = f.svc.AddStrike(ctx, id, "abuse")
	require.NoError(t, err)
	assert.Zero(t, f.repo.get(id).TrustPoints)
}

func TestTrustService_AddStrikeUnknownUser(t *testing.T) {
	f := newTrustFixture()
	_, err := f.svc.AddStrike(context.Background(), uuid.New(), "spam")
	assert.ErrorIs(t, err, ErrTrustRecordNotFound)
}

func TestTrustService_EveryTenthFlagIsAStrike(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	f.repo.put(model.TrustScore{UserID: id, TrustPoints: 500, CreatedAt: f.clock.Now()})

	for i := 1; i <= 9; i++ {
		require.NoError(t, f.svc.RecordFlag(ctx, id))
	}
	score := f.repo.get(id)
	assert.Equal(t, 9, score.FlagsReceived)
	assert.Zero(t, score.Strikes)
	assert.Equal(t, 410, score.TrustPoints)

	require.NoError(t, f.svc.RecordActivity(ctx, id, trust.ActivityFlagReceived))
	score = f.repo.get(id)
	assert.Equal(t, 1, score.Strikes)
	// The strike counts its own flag on top of the tenth.
	assert.Equal(t, 11, score.FlagsReceived)
	assert.Equal(t, 500-100-50, score.TrustPoints)
}

func TestTrustService_ActivityPromotesToBasic(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	f.repo.put(model.TrustScore{
		UserID:    id,
		CreatedAt: f.clock.Now().Add(-8 * trust.Day),
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, f.svc.RecordActivity(ctx, id, trust.ActivityPostCreated))
	}
	assert.Equal(t, trust.LevelNew, f.repo.get(id).TrustLevel)

	require.NoError(t, f.svc.RecordActivity(ctx, id, trust.ActivityPostCreated))
	score := f.repo.get(id)
	assert.Equal(t, 5, score.PostsCount)
	assert.Equal(t, 25, score.TrustPoints)
	assert.Equal(t, trust.LevelBasic, score.TrustLevel)
	assert.Contains(t, f.pub.types(), events.TypeLevelChanged)
}

func TestTrustService_SmallActivityDoesNotRecompute(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	// Qualifies for Basic, but the cached level is stale until a recompute.
	f.repo.put(model.TrustScore{
		UserID:      id,
		PostsCount:  5,
		TrustPoints: 30,
		CreatedAt:   f.clock.Now().Add(-10 * trust.Day),
	})

	require.NoError(t, f.svc.RecordActivity(ctx, id, trust.ActivityLikeReceived))
	assert.Equal(t, trust.LevelNew, f.repo.get(id).TrustLevel)

	level, err := f.svc.RecomputeLevel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelBasic, level)
}

func TestTrustService_RecordActivityErrors(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()

	err := f.svc.RecordActivity(ctx, uuid.New(), trust.ActivityPostCreated)
	assert.ErrorIs(t, err, ErrTrustRecordNotFound)

	err = f.svc.RecordActivity(ctx, uuid.New(), trust.Activity("teleported"))
	assert.ErrorIs(t, err, ErrUnknownActivityKind)
}

func TestTrustService_BanExpiresByClock(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	f.repo.put(model.TrustScore{UserID: id, Strikes: 2, CreatedAt: f.clock.Now()})

	_, err := f.svc.AddStrike(ctx, id, "harassment")
	require.NoError(t, err)

	banned, err := f.svc.IsBanned(ctx, id)
	require.NoError(t, err)
	assert.True(t, banned)
	err = f.svc.EnsureNotBanned(ctx, id)
	assert.ErrorIs(t, err, ErrAccountSuspended)
	assert.True(t, IsPolicyViolation(err))
	assert.NotContains(t, err.Error(), "until")

	f.clock.Advance(7*trust.Day + time.Second)
	banned, err = f.svc.IsBanned(ctx, id)
	require.NoError(t, err)
	assert.False(t, banned)
	assert.NoError(t, f.svc.EnsureNotBanned(ctx, id))
}

func TestTrustService_IsBannedUnknownUser(t *testing.T) {
	f := newTrustFixture()
	banned, err := f.svc.IsBanned(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestTrustService_IsBannedStoreError(t *testing.T) {
	f := newTrustFixture()
	f.repo.err = errors.New("connection reset")
	_, err := f.svc.IsBanned(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.False(t, IsPolicyViolation(err))
}

func TestTrustService_SetLevelVerifiedSticks(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, f.svc.Initialize(ctx, id))

	got, err := f.svc.SetLevel(ctx, id, trust.LevelVerified)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelVerified, got)
	level, err := f.svc.RecomputeLevel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelVerified, level)
	assert.Contains(t, f.pub.types(), events.TypeLevelChanged)

	_, err = f.svc.SetLevel(ctx, id, trust.Level(9))
	assert.ErrorIs(t, err, ErrInvalidTrustLevel)
}

func TestTrustService_SetLevelKeepsStoredLevelDerivable(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()

	struck := uuid.New()
	f.repo.put(model.TrustScore{
		UserID:      struck,
		TrustPoints: 500,
		PostsCount:  80,
		Strikes:     3,
		CreatedAt:   f.clock.Now().Add(-120 * trust.Day),
	})
	got, err := f.svc.SetLevel(ctx, struck, trust.LevelTrusted)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelNew, got)
	assert.Equal(t, trust.LevelNew, f.repo.get(struck).TrustLevel)

	got, err = f.svc.SetLevel(ctx, struck, trust.LevelVerified)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelNew, got, "strikes outrank the verified override")

	fresh := uuid.New()
	require.NoError(t, f.svc.Initialize(ctx, fresh))
	got, err = f.svc.SetLevel(ctx, fresh, trust.LevelBasic)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelNew, got)

	_, err = f.svc.SetLevel(ctx, fresh, trust.LevelVerified)
	require.NoError(t, err)
	got, err = f.svc.SetLevel(ctx, fresh, trust.LevelBasic)
	require.NoError(t, err)
	assert.Equal(t, trust.LevelNew, got, "a non-verified level clears the override")
	assert.False(t, f.repo.get(fresh).VerifiedOverride)
}

func TestTrustService_StrikeDemotionPublishesLevelChange(t *testing.T) {
	f := newTrustFixture()
	ctx := context.Background()
	id := uuid.New()
	f.repo.put(model.TrustScore{
		UserID:      id,
		TrustLevel:  trust.LevelBasic,
		TrustPoints: 40,
		PostsCount:  6,
		CreatedAt:   f.clock.Now().Add(-10 * trust.Day),
	})

	n, err := f.svc.AddStrike(ctx, id, "spam")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	score := f.repo.get(id)
	assert.Nil(t, score.BannedUntil)
	assert.Equal(t, trust.LevelNew, score.TrustLevel)
	assert.Equal(t, []string{events.TypeLevelChanged}, f.pub.types())
}

func TestTrustService_LevelStats(t *testing.T) {
	f := newTrustFixture()
	f.repo.put(model.TrustScore{UserID: uuid.New(), TrustLevel: trust.LevelNew})
	f.repo.put(model.TrustScore{UserID: uuid.New(), TrustLevel: trust.LevelNew})
	f.repo.put(model.TrustScore{UserID: uuid.New(), TrustLevel: trust.LevelTrusted})

	stats, err := f.svc.LevelStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats[trust.LevelNew])
	assert.EqualValues(t, 1, stats[trust.LevelTrusted])
}
