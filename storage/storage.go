// Package storage defines the counter-store interface backing the rate
// limiter. It supports remote backends shared across instances (HTTP
// pipeline, Valkey) and a best-effort in-process backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no entry exists for a key.
var ErrNotFound = errors.New("entry not found")

// Entry is the persisted state of one (identifier, window) counter.
// A new window always starts a new key; entries are never reset in place.
type Entry struct {
	// Count is the number of requests observed in the window.
	// Monotonically non-decreasing for the lifetime of the entry.
	Count int64 `json:"count"`

	// WindowStart is when the fixed window began.
	WindowStart time.Time `json:"window_start"`

	// ExpiresAt is WindowStart plus the window length; the entry must not
	// outlive it by more than backend expiry granularity.
	ExpiresAt time.Time `json:"expires_at"`
}

// CounterStore is implemented by all rate-limit storage backends.
//
// Increment must be atomic per key: concurrent callers observe distinct,
// monotonically increasing counts. The TTL is established when the key is
// created (first increment of the window); re-establishing it on later
// increments is permitted but not required.
//
// All methods accept context.Context for cancellation and timeouts. Backend
// failures are returned as errors, never silently retried; the rate limiter
// converts them into its fail-open/fail-closed decision.
type CounterStore interface {
	// Get retrieves the entry for a key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores an entry under a key with the given TTL.
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error

	// Increment atomically increments the counter for a key, creating it
	// with count 1 and the given TTL if absent, and returns the
	// post-increment count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Clear removes all keys with the given prefix. Backends that expire
	// keys naturally may implement this as a no-op; it exists for
	// administrative and test use, not correctness.
	Clear(ctx context.Context, prefix string) error

	// Close releases backend resources (timers, connections).
	Close() error
}

// Key builds the storage key for an identifier and window start.
// One key per (identifier, window) pair; a new window uses a new key.
func Key(prefix, identifier string, windowStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, identifier, windowStart.UnixMilli())
}

// KeyPrefix builds the per-identifier key prefix used by Clear.
func KeyPrefix(prefix, identifier string) string {
	return prefix + identifier + ":"
}
