package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trustguard/engine/internal/events"
	"trustguard/engine/internal/model"
)

type fingerprintFixture struct {
	svc  FingerprintService
	repo *fakeDeviceRepo
	pub  *recordingPublisher
}

func newFingerprintFixture(autoBlock int) *fingerprintFixture {
	f := &fingerprintFixture{repo: newFakeDeviceRepo(), pub: &recordingPublisher{}}
	f.svc = NewFingerprintService(f.repo, &serialTransactor{}, f.pub, newTestClock().Now, testLogger, autoBlock)
	return f
}

func register(t *testing.T, svc FingerprintService, hash string, userID uuid.UUID) *DeviceInfo {
	t.Helper()
	info, err := svc.Register(context.Background(), hash, &userID, nil)
	require.NoError(t, err)
	return info
}

func TestFingerprintService_RiskBrackets(t *testing.T) {
	f := newFingerprintFixture(0)
	hash := f.svc.Hash("canvas:abc|webgl:def|tz:UTC")

	// Each step is scored on the accounts attached before it.
	steps := []struct {
		accounts int
		risk     int
	}{
		{1, 0},   // A creates the device
		{2, 5},   // B, prior 1
		{3, 10},  // C, prior 2
		{4, 25},  // D, prior 3
		{5, 40},  // prior 4
		{6, 55},  // prior 5
		{7, 85},  // prior 6
		{8, 100}, // prior 7, clamped
	}
	for _, s := range steps {
		info := register(t, f.svc, hash, uuid.New())
		assert.Equal(t, s.accounts, info.AccountCount)
		assert.Equal(t, s.risk, info.RiskScore, "after %d accounts", s.accounts)
	}
}

func TestFingerprintService_ReRegistrationIsIdempotent(t *testing.T) {
	f := newFingerprintFixture(0)
	a, b := uuid.New(), uuid.New()

	register(t, f.svc, "h", a)
	register(t, f.svc, "h", b)
	info := register(t, f.svc, "h", a)
	assert.Equal(t, 2, info.AccountCount)
	assert.Equal(t, 5, info.RiskScore)
}

// lostInsertRepo reports the first locked read as a miss, as when another
// registration inserts the same device between our read and our insert.
type lostInsertRepo struct {
	*fakeDeviceRepo
	missed bool
}

func (r *lostInsertRepo) GetForUpdate(ctx context.Context, hash string) (*model.DeviceFingerprint, error) {
	if !r.missed {
		r.missed = true
		return nil, gorm.ErrRecordNotFound
	}
	return r.fakeDeviceRepo.GetForUpdate(ctx, hash)
}

func TestFingerprintService_ConcurrentFirstRegistrationKeepsBothUsers(t *testing.T) {
	base := newFakeDeviceRepo()
	hash := "f00dfeed"
	first, second := uuid.New(), uuid.New()
	created, err := base.Create(context.Background(), &model.DeviceFingerprint{
		FingerprintHash: hash,
		UserIDs:         model.UUIDSet{first},
		AccountCount:    1,
	})
	require.NoError(t, err)
	require.True(t, created)

	repo := &lostInsertRepo{fakeDeviceRepo: base}
	svc := NewFingerprintService(repo, &serialTransactor{}, &recordingPublisher{}, newTestClock().Now, testLogger, 0)

	info := register(t, svc, hash, second)
	assert.ElementsMatch(t, []uuid.UUID{first, second}, info.UserIDs)
	assert.Equal(t, 2, info.AccountCount)
	assert.Equal(t, 5, info.RiskScore)

	stored, err := base.GetByHash(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, stored.UserIDs.Contains(second))
}

func TestFingerprintService_AnonymousDevice(t *testing.T) {
	f := newFingerprintFixture(0)
	info, err := f.svc.Register(context.Background(), "anon", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, info.AccountCount)
	assert.Zero(t, info.RiskScore)

	info = register(t, f.svc, "anon", uuid.New())
	assert.Equal(t, 1, info.AccountCount)
	assert.Equal(t, 5, info.RiskScore)
}

func TestFingerprintService_BlockedDeviceShortCircuits(t *testing.T) {
	f := newFingerprintFixture(0)
	ctx := context.Background()
	a := uuid.New()
	register(t, f.svc, "h", a)
	require.NoError(t, f.svc.Block(ctx, "h", "ban evasion"))

	newcomer := uuid.New()
	info, err := f.svc.Register(ctx, "h", &newcomer, nil)
	require.ErrorIs(t, err, ErrDeviceBlocked)
	require.NotNil(t, info)
	assert.True(t, info.IsBlocked)

	stored, err := f.repo.GetByHash(ctx, "h")
	require.NoError(t, err)
	assert.False(t, stored.UserIDs.Contains(newcomer), "a blocked device takes no new accounts")
	assert.Contains(t, f.pub.types(), events.TypeDeviceBlocked)
}

func TestFingerprintService_AutoBlock(t *testing.T) {
	f := newFingerprintFixture(90)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		register(t, f.svc, "farm", uuid.New())
	}
	_, blocked, err := f.svc.CheckRisk(ctx, "farm")
	require.NoError(t, err)
	assert.False(t, blocked, "risk 85 stays under the threshold")

	info := register(t, f.svc, "farm", uuid.New())
	assert.True(t, info.IsBlocked)
	assert.Equal(t, 100, info.RiskScore)
}

func TestFingerprintService_UnblockHalvesRisk(t *testing.T) {
	f := newFingerprintFixture(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		register(t, f.svc, "h", uuid.New())
	}
	require.NoError(t, f.svc.Block(ctx, "h", "manual review"))
	require.NoError(t, f.svc.Unblock(ctx, "h"))

	risk, blocked, err := f.svc.CheckRisk(ctx, "h")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Equal(t, 20, risk)

	assert.ErrorIs(t, f.svc.Unblock(ctx, "missing"), ErrDeviceNotFound)
}

func TestFingerprintService_CheckRiskUnknown(t *testing.T) {
	f := newFingerprintFixture(0)
	risk, blocked, err := f.svc.CheckRisk(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Zero(t, risk)
	assert.False(t, blocked)
}

func TestFingerprintService_ListUserDevicesRequiresOwner(t *testing.T) {
	f := newFingerprintFixture(0)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()
	register(t, f.svc, "h1", owner)
	register(t, f.svc, "h2", owner)
	register(t, f.svc, "h3", other)

	devices, err := f.svc.ListUserDevices(ctx, owner, owner)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	_, err = f.svc.ListUserDevices(ctx, other, owner)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestFingerprintService_HighRiskDevices(t *testing.T) {
	f := newFingerprintFixture(0)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		register(t, f.svc, "risky", uuid.New())
	}
	register(t, f.svc, "calm", uuid.New())

	devices, err := f.svc.HighRiskDevices(ctx, 20)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "risky", devices[0].FingerprintHash)
	assert.Equal(t, 25, devices[0].RiskScore)
}

func TestFingerprintService_HashIsStable(t *testing.T) {
	f := newFingerprintFixture(0)
	a := f.svc.Hash("raw")
	assert.Len(t, a, 64)
	assert.Equal(t, a, f.svc.Hash("raw"))
	assert.NotEqual(t, a, f.svc.Hash("raw2"))
}
