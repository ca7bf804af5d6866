package repository

import (
	"context"
	"sync"
	"time"
)

type memCounter struct {
	value     int64
	expiresAt time.Time
	hasTTL    bool
}

func (e memCounter) isExpired(now time.Time) bool {
	return e.hasTTL && !now.Before(e.expiresAt)
}

type memoryCounterStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memCounter
}

func NewMemoryCounterStore() CounterStore {
	return NewMemoryCounterStoreWithClock(time.Now)
}

// NewMemoryCounterStoreWithClock lets tests drive expiry.
func NewMemoryCounterStoreWithClock(now func() time.Time) CounterStore {
	return &memoryCounterStore{
		now:     now,
		entries: make(map[string]memCounter),
	}
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (s *memoryCounterStore) live(key string) (memCounter, bool) {
	entry, ok := s.entries[key]
	if ok && entry.isExpired(s.now()) {
		delete(s.entries, key)
		return memCounter{}, false
	}
	return entry, ok
}

func (s *memoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, _ := s.live(key)
	return entry.value, nil
}

func (s *memoryCounterStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, _ := s.live(key)
	entry.value++
	s.entries[key] = entry
	return entry.value, nil
}

func (s *memoryCounterStore) ExpireIfUnset(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key)
	if !ok || entry.hasTTL {
		return nil
	}
	entry.hasTTL = true
	entry.expiresAt = s.now().Add(ttl)
	s.entries[key] = entry
	return nil
}
