package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hatchsec/credguard/storage"
)

const (
	// DefaultKeyPrefix namespaces rate-limit keys in shared stores.
	DefaultKeyPrefix = "rl:"

	// failClosedRetryAfter is the retry hint returned when a storage
	// failure forces a fail-closed decision. Short, so legitimate traffic
	// recovers quickly once the store does.
	failClosedRetryAfter = 10 * time.Second
)

// FailurePolicy decides how the limiter treats storage failures.
type FailurePolicy int

const (
	// FailOpen treats a storage failure as "not limited". For development:
	// an unreachable store must not block local work.
	FailOpen FailurePolicy = iota

	// FailClosed treats a storage failure as "limited". For production: an
	// unreliable counter must never be read as "allow everything".
	FailClosed
)

// String returns the policy name for logs.
func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}
	return "fail-open"
}

// Result is the outcome of a rate-limit check or status probe.
type Result struct {
	// Limited is true when the request exceeds the window's quota.
	Limited bool

	// Limit is the configured quota for the window.
	Limit int

	// Remaining is the quota left in the current window.
	Remaining int

	// Reset is when the current window ends and the counter starts fresh.
	Reset time.Time

	// RetryAfter is how long a limited caller should wait, rounded up to
	// whole seconds. Zero when not limited.
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the Retry-After value in whole seconds.
func (r Result) RetryAfterSeconds() int {
	return int(r.RetryAfter / time.Second)
}

// LimiterConfig configures a Limiter.
type LimiterConfig struct {
	// Store is the counter backend (required). Selected once at startup
	// and injected here; the limiter never chooses a backend itself.
	Store storage.CounterStore

	// Policy is the storage-failure policy. Default FailOpen; production
	// deployments must set FailClosed.
	Policy FailurePolicy

	// KeyPrefix namespaces this limiter's keys. Default "rl:".
	KeyPrefix string

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger

	// Auditor optionally records storage failures as security events.
	Auditor *Auditor
}

// Limiter counts requests per identifier in fixed, calendar-aligned windows.
//
// The window is a fixed bucket, not a sliding one: up to 2x the limit can
// pass across a window boundary (near-limit at the end of one window and
// again at the start of the next). This is an accepted approximation.
type Limiter struct {
	store   storage.CounterStore
	policy  FailurePolicy
	prefix  string
	logger  *slog.Logger
	auditor *Auditor
	now     func() time.Time
}

// NewLimiter creates a rate limiter over the given counter store.
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("limiter requires a counter store")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		store:   cfg.Store,
		policy:  cfg.Policy,
		prefix:  prefix,
		logger:  logger,
		auditor: cfg.Auditor,
		now:     time.Now,
	}, nil
}

// SetClock replaces the limiter's time source. Test hook for window-reset
// scenarios; production code never calls this.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Check consumes one unit of quota for the identifier and reports whether
// the request is limited. Every call counts, including probes; callers that
// only want to observe state must use Status instead.
func (l *Limiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	now := l.now()
	windowStart := windowStart(now, window)
	key := storage.Key(l.prefix, identifier, windowStart)

	count, err := l.store.Increment(ctx, key, window)
	if err != nil {
		return l.storageFailure(identifier, "check", err, limit, now)
	}

	reset := windowStart.Add(window)
	res := Result{
		Limit:     limit,
		Remaining: remaining(limit, count),
		Reset:     reset,
	}
	if count > int64(limit) {
		res.Limited = true
		res.RetryAfter = ceilSeconds(reset.Sub(now))
	}
	return res
}

// Status reports the identifier's current window state without consuming
// quota. An absent entry is a fresh window with full quota.
func (l *Limiter) Status(ctx context.Context, identifier string, limit int, window time.Duration) Result {
	now := l.now()
	windowStart := windowStart(now, window)
	key := storage.Key(l.prefix, identifier, windowStart)
	reset := windowStart.Add(window)

	entry, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{Limit: limit, Remaining: limit, Reset: reset}
		}
		return l.storageFailure(identifier, "status", err, limit, now)
	}

	res := Result{
		Limit:     limit,
		Remaining: remaining(limit, entry.Count),
		Reset:     reset,
	}
	if entry.Count >= int64(limit) {
		res.Limited = true
		res.RetryAfter = ceilSeconds(reset.Sub(now))
	}
	return res
}

// Clear removes all windows for an identifier. Administrative and test use
// only; remote backends may rely on natural TTL expiry instead.
func (l *Limiter) Clear(ctx context.Context, identifier string) error {
	if err := l.store.Clear(ctx, storage.KeyPrefix(l.prefix, identifier)); err != nil {
		return fmt.Errorf("failed to clear rate limit state: %w", err)
	}
	return nil
}

// storageFailure converts a backend error into the configured policy
// decision. The error is logged with its cause but never escapes Check or
// Status.
func (l *Limiter) storageFailure(identifier, op string, err error, limit int, now time.Time) Result {
	l.logger.Error("Rate limit storage failure",
		"operation", op,
		"policy", l.policy.String(),
		"error", err)
	l.auditor.LogStorageFailure(identifier, l.policy)

	if l.policy == FailClosed {
		return Result{
			Limited:    true,
			Limit:      limit,
			Remaining:  0,
			Reset:      now.Add(failClosedRetryAfter),
			RetryAfter: failClosedRetryAfter,
		}
	}
	return Result{Limit: limit, Remaining: limit, Reset: now}
}

// windowStart floors now to the current fixed window boundary.
func windowStart(now time.Time, window time.Duration) time.Time {
	ms := window.Milliseconds()
	if ms <= 0 {
		return now
	}
	return time.UnixMilli((now.UnixMilli() / ms) * ms)
}

func remaining(limit int, count int64) int {
	r := limit - int(count)
	if r < 0 {
		return 0
	}
	return r
}

// ceilSeconds rounds a duration up to whole seconds, minimum one second for
// any positive remainder.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	s := d / time.Second
	if d%time.Second != 0 {
		s++
	}
	return s * time.Second
}
