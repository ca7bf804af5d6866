package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trustguard/engine/internal/events"
	"trustguard/engine/internal/model"
	"trustguard/engine/internal/trust"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testEpoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// serialTransactor runs one transaction at a time, which is what row locks
// give the real store for the rows these services touch.
type serialTransactor struct {
	mu sync.Mutex
}

type inTxKey struct{}

func (t *serialTransactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, inTxKey{}, true))
}

type fakeTrustRepo struct {
	mu     sync.Mutex
	scores map[uuid.UUID]model.TrustScore
	err    error
}

func newFakeTrustRepo() *fakeTrustRepo {
	return &fakeTrustRepo{scores: map[uuid.UUID]model.TrustScore{}}
}

func (r *fakeTrustRepo) Create(_ context.Context, score *model.TrustScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.scores[score.UserID]; !ok {
		r.scores[score.UserID] = *score
	}
	return nil
}

func (r *fakeTrustRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.scores[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r *fakeTrustRepo) GetForUpdate(ctx context.Context, userID uuid.UUID) (*model.TrustScore, error) {
	return r.GetByUserID(ctx, userID)
}

func (r *fakeTrustRepo) Save(_ context.Context, score *model.TrustScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.scores[score.UserID] = *score
	return nil
}

func (r *fakeTrustRepo) AddPoints(_ context.Context, userID uuid.UUID, delta int, counter model.ActivityCounter, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	s, ok := r.scores[userID]
	if !ok {
		return false, nil
	}
	s.AddPoints(delta)
	switch counter {
	case model.CounterPosts:
		s.PostsCount++
	case model.CounterComments:
		s.CommentsCount++
	case model.CounterLikesReceived:
		s.LikesReceivedCount++
	case model.CounterFollowers:
		s.FollowersCount++
	}
	s.LastActivityAt = &at
	s.UpdatedAt = at
	r.scores[userID] = s
	return true, nil
}

func (r *fakeTrustRepo) CountByLevel(_ context.Context) (map[trust.Level]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[trust.Level]int64{}
	for _, s := range r.scores {
		out[s.TrustLevel]++
	}
	return out, nil
}

func (r *fakeTrustRepo) put(s model.TrustScore) {
	r.mu.Lock()
	r.scores[s.UserID] = s
	r.mu.Unlock()
}

func (r *fakeTrustRepo) get(userID uuid.UUID) model.TrustScore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores[userID]
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]model.DeviceFingerprint
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{devices: map[string]model.DeviceFingerprint{}}
}

func cloneDevice(d model.DeviceFingerprint) *model.DeviceFingerprint {
	d.UserIDs = append(model.UUIDSet(nil), d.UserIDs...)
	return &d
}

func (r *fakeDeviceRepo) Create(_ context.Context, device *model.DeviceFingerprint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[device.FingerprintHash]; ok {
		return false, nil
	}
	r.devices[device.FingerprintHash] = *cloneDevice(*device)
	return true, nil
}

func (r *fakeDeviceRepo) GetByHash(_ context.Context, hash string) (*model.DeviceFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[hash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneDevice(d), nil
}

func (r *fakeDeviceRepo) GetForUpdate(ctx context.Context, hash string) (*model.DeviceFingerprint, error) {
	return r.GetByHash(ctx, hash)
}

func (r *fakeDeviceRepo) Save(_ context.Context, device *model.DeviceFingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[device.FingerprintHash] = *cloneDevice(*device)
	return nil
}

func (r *fakeDeviceRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.DeviceFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DeviceFingerprint
	for _, d := range r.devices {
		if d.UserIDs.Contains(userID) {
			out = append(out, *cloneDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

func (r *fakeDeviceRepo) ListHighRisk(_ context.Context, minRisk int, limit int) ([]model.DeviceFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DeviceFingerprint
	for _, d := range r.devices {
		if !d.IsBlocked && d.RiskScore >= minRisk {
			out = append(out, *cloneDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeInviteRepo struct {
	mu    sync.Mutex
	codes map[string]model.InviteCode
	order []string
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{codes: map[string]model.InviteCode{}}
}

func (r *fakeInviteRepo) Create(_ context.Context, code *model.InviteCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code.Code]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	r.codes[code.Code] = *code
	r.order = append(r.order, code.Code)
	return nil
}

func (r *fakeInviteRepo) GetByCode(_ context.Context, code string) (*model.InviteCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[code]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r *fakeInviteRepo) GetByCodeForUpdate(ctx context.Context, code string) (*model.InviteCode, error) {
	return r.GetByCode(ctx, code)
}

func (r *fakeInviteRepo) Exists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.codes[code]
	return ok, nil
}

func (r *fakeInviteRepo) Save(_ context.Context, code *model.InviteCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code.Code] = *code
	return nil
}

func (r *fakeInviteRepo) ListByCreator(_ context.Context, userID uuid.UUID, limit int) ([]model.InviteCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.InviteCode
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		if c := r.codes[r.order[i]]; c.CreatedBy == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeInviteRepo) put(c model.InviteCode) {
	r.mu.Lock()
	r.codes[c.Code] = c
	r.order = append(r.order, c.Code)
	r.mu.Unlock()
}

func (r *fakeInviteRepo) get(code string) model.InviteCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[code]
}

type fakeRelationshipRepo struct {
	mu   sync.Mutex
	rels []model.InviteRelationship
}

func (r *fakeRelationshipRepo) Create(_ context.Context, rel *model.InviteRelationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rels {
		if e.InviteeID == rel.InviteeID {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	rel.ID = uint64(len(r.rels) + 1)
	r.rels = append(r.rels, *rel)
	return nil
}

func (r *fakeRelationshipRepo) ExistsForInvitee(_ context.Context, inviteeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rels {
		if e.InviteeID == inviteeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRelationshipRepo) ListByInviters(_ context.Context, inviterIDs []uuid.UUID) ([]model.InviteRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(inviterIDs))
	for _, id := range inviterIDs {
		want[id] = true
	}
	var out []model.InviteRelationship
	for _, e := range r.rels {
		if want[e.InviterID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRelationshipRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rels)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingCounterStore simulates an unreachable counter backend.
type failingCounterStore struct{}

var errStoreDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (failingCounterStore) Get(context.Context, string) (int64, error)  { return 0, errStoreDown }
func (failingCounterStore) Incr(context.Context, string) (int64, error) { return 0, errStoreDown }
func (failingCounterStore) ExpireIfUnset(context.Context, string, time.Duration) error {
	return errStoreDown
}

var testLogger = zap.NewNop()
