package repository

import (
	"context"
	"time"
)

// CounterStore abstracts the shared expiring counters behind rate limiting.
// Implementations: Redis (production) or in-memory (local dev / single instance).
type CounterStore interface {
	// Get returns the counter value; a missing key reads as 0.
	Get(ctx context.Context, key string) (int64, error)
	// Incr atomically increments key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// ExpireIfUnset sets a TTL only when key has none.
	ExpireIfUnset(ctx context.Context, key string, ttl time.Duration) error
}
