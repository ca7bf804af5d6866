package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trustguard/engine/internal/metrics"
	"trustguard/engine/internal/repository"
	"trustguard/engine/internal/trust"
)

const rateLimitKeyPrefix = "ratelimit"

// RateDecision is the outcome of a quota check. When Limited is true, Limit and
// Window describe the exhausted window and Remaining is 0. Otherwise Remaining
// is the tightest figure across every checked window. Tracked is false for
// actions no table mentions; those are never limited.
type RateDecision struct {
	Action     trust.Action  `json:"action"`
	Tracked    bool          `json:"tracked"`
	Limited    bool          `json:"limited"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	Window     time.Duration `json:"window"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Err converts a denial into a *RateLimitError, or nil when allowed.
func (d *RateDecision) Err() error {
	if d == nil || !d.Limited {
		return nil
	}
	return &RateLimitError{Action: d.Action, Limit: d.Limit, Window: d.Window, RetryAfter: d.RetryAfter}
}

// RateLimiter enforces fixed-window quotas over a shared counter store. Check
// and Increment are separate round-trips; callers increment only after the
// gated action succeeded. Store errors are returned, and callers must treat
// them as "cannot verify quota" and reject.
type RateLimiter interface {
	Check(ctx context.Context, subject string, action trust.Action, level trust.Level) (*RateDecision, error)
	Increment(ctx context.Context, subject string, action trust.Action) error
	Remaining(ctx context.Context, subject string, action trust.Action, level trust.Level) (int, error)
	CheckIP(ctx context.Context, ip string, action trust.Action) (*RateDecision, error)
	IncrementIP(ctx context.Context, ip string, action trust.Action) error
}

type rateLimiter struct {
	store  repository.CounterStore
	clock  Clock
	logger *zap.Logger
}

func NewRateLimiter(store repository.CounterStore, clock Clock, logger *zap.Logger) RateLimiter {
	if clock == nil {
		clock = SystemClock
	}
	return &rateLimiter{store: store, clock: clock, logger: logger}
}

// windowIndex is floor(now / window).
func windowIndex(now time.Time, window time.Duration) int64 {
	return now.Unix() / int64(window/time.Second)
}

// retryAfter is the time left until the window containing now rolls over.
func retryAfter(now time.Time, window time.Duration) time.Duration {
	secs := int64(window / time.Second)
	next := (now.Unix()/secs + 1) * secs
	return time.Unix(next, 0).Sub(now)
}

func userKey(subject string, action trust.Action, window time.Duration, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", rateLimitKeyPrefix, subject, action, windowIndex(now, window))
}

func ipKey(ip string, action trust.Action, window time.Duration, now time.Time) string {
	return fmt.Sprintf("%s:ip:%s:%s:%d", rateLimitKeyPrefix, ip, action, windowIndex(now, window))
}

type keyFunc func(window time.Duration, now time.Time) string

func (r *rateLimiter) Check(ctx context.Context, subject string, action trust.Action, level trust.Level) (*RateDecision, error) {
	return r.checkUser(ctx, subject, action, level, true)
}

func (r *rateLimiter) checkUser(ctx context.Context, subject string, action trust.Action, level trust.Level, record bool) (*RateDecision, error) {
	quotas := trust.QuotasFor(level, action)
	return r.check(ctx, action, quotas, record, func(w time.Duration, now time.Time) string {
		return userKey(subject, action, w, now)
	}, zap.String("subject", subject), zap.Stringer("level", level))
}

func (r *rateLimiter) CheckIP(ctx context.Context, ip string, action trust.Action) (*RateDecision, error) {
	var quotas []trust.Quota
	if q, ok := trust.IPQuotaFor(action); ok {
		quotas = []trust.Quota{q}
	}
	return r.check(ctx, action, quotas, true, func(w time.Duration, now time.Time) string {
		return ipKey(ip, action, w, now)
	}, zap.String("ip", ip))
}

// check reads every window of quotas. record controls whether the outcome is
// counted in the decision metric; read-only quota views pass false.
func (r *rateLimiter) check(ctx context.Context, action trust.Action, quotas []trust.Quota, record bool, key keyFunc, fields ...zap.Field) (*RateDecision, error) {
	observe := func(outcome string) {
		if record {
			metrics.RateLimitDecisions.WithLabelValues(string(action), outcome).Inc()
		}
	}

	decision := &RateDecision{Action: action}
	if len(quotas) == 0 {
		return decision, nil
	}
	decision.Tracked = true

	now := r.clock()
	remaining := -1
	for _, q := range quotas {
		count, err := r.store.Get(ctx, key(q.Window, now))
		if err != nil {
			observe(metrics.OutcomeUnavailable)
			return nil, fmt.Errorf("read rate counter: %w", err)
		}

		if count >= int64(q.Limit) {
			decision.Limited = true
			decision.Limit = q.Limit
			decision.Remaining = 0
			decision.Window = q.Window
			decision.RetryAfter = retryAfter(now, q.Window)
			observe(metrics.OutcomeLimited)
			r.logger.Debug("rate limit exceeded",
				append(fields,
					zap.String("action", string(action)),
					zap.Duration("window", q.Window),
					zap.Int64("count", count),
					zap.Int("limit", q.Limit),
				)...)
			return decision, nil
		}

		left := q.Limit - int(count)
		if remaining < 0 || left < remaining {
			remaining = left
			decision.Limit = q.Limit
			decision.Window = q.Window
		}
	}

	decision.Remaining = remaining
	observe(metrics.OutcomeAllowed)
	return decision, nil
}

func (r *rateLimiter) Increment(ctx context.Context, subject string, action trust.Action) error {
	now := r.clock()
	for _, w := range trust.WindowsFor(action) {
		if err := r.bump(ctx, userKey(subject, action, w, now), w); err != nil {
			return err
		}
	}
	return nil
}

func (r *rateLimiter) IncrementIP(ctx context.Context, ip string, action trust.Action) error {
	q, ok := trust.IPQuotaFor(action)
	if !ok {
		return nil
	}
	return r.bump(ctx, ipKey(ip, action, q.Window, r.clock()), q.Window)
}

// bump increments atomically, then arms the expiry. ExpireIfUnset leaves an
// existing TTL alone, so every increment re-arms a key whose first expire
// call failed without extending a live window.
func (r *rateLimiter) bump(ctx context.Context, key string, window time.Duration) error {
	if _, err := r.store.Incr(ctx, key); err != nil {
		return fmt.Errorf("increment rate counter: %w", err)
	}
	if err := r.store.ExpireIfUnset(ctx, key, window); err != nil {
		return fmt.Errorf("expire rate counter: %w", err)
	}
	return nil
}

func (r *rateLimiter) Remaining(ctx context.Context, subject string, action trust.Action, level trust.Level) (int, error) {
	d, err := r.checkUser(ctx, subject, action, level, false)
	if err != nil {
		return 0, err
	}
	return d.Remaining, nil
}
