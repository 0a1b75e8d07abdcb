// Package memory provides the in-process counter store. It protects only
// the single running process and resets on restart; production deployments
// use a remote backend instead.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hatchsec/credguard/storage"
)

// Store is an in-memory implementation of storage.CounterStore.
//
// Each entry gets a single-shot expiry timer when it is created; there is no
// background sweep goroutine. Expiry is additionally checked lazily on
// access so a stale entry is never returned between its deadline and its
// timer firing (or when the clock is mocked in tests).
type Store struct {
	mu      sync.Mutex
	entries map[string]*record
	logger  *slog.Logger
	now     func() time.Time
	closed  bool
}

type record struct {
	entry storage.Entry
	timer *time.Timer
}

// Compile-time interface check
var _ storage.CounterStore = (*Store)(nil)

// New creates an empty in-memory counter store.
func New() *Store {
	return NewWithLogger(nil)
}

// NewWithLogger creates an in-memory counter store with the given logger.
func NewWithLogger(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]*record),
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the store's time source. Test hook; expiry timers still
// run on the real clock, so mocked-clock tests rely on the lazy expiry
// check instead.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get retrieves the entry for a key, or storage.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (*storage.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[key]
	if !ok || s.expired(rec) {
		return nil, storage.ErrNotFound
	}

	e := rec.entry
	return &e, nil
}

// Set stores an entry under a key and schedules its removal after ttl.
func (s *Store) Set(_ context.Context, key string, entry *storage.Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.entries[key]; ok && rec.timer != nil {
		rec.timer.Stop()
	}
	rec := &record{entry: *entry}
	rec.timer = s.scheduleRemoval(key, rec, ttl)
	s.entries[key] = rec
	return nil
}

// Increment atomically increments the counter for a key. A missing or
// expired key starts a fresh entry with count 1 and a removal scheduled ttl
// from now; the TTL of a live entry is not refreshed, so the key expires
// relative to the first increment of its window.
func (s *Store) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.entries[key]
	if ok && !s.expired(rec) {
		rec.entry.Count++
		return rec.entry.Count, nil
	}

	if ok && rec.timer != nil {
		rec.timer.Stop()
	}
	fresh := &record{
		entry: storage.Entry{
			Count:       1,
			WindowStart: now,
			ExpiresAt:   now.Add(ttl),
		},
	}
	fresh.timer = s.scheduleRemoval(key, fresh, ttl)
	s.entries[key] = fresh
	return 1, nil
}

// Clear removes all keys with the given prefix. Best-effort pattern match
// for administrative and test use.
func (s *Store) Clear(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.entries {
		if strings.HasPrefix(key, prefix) {
			if rec.timer != nil {
				rec.timer.Stop()
			}
			delete(s.entries, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Cleared rate limit entries",
			"prefix", prefix,
			"removed", removed)
	}
	return nil
}

// Close stops all pending expiry timers and drops all entries.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.entries {
		if rec.timer != nil {
			rec.timer.Stop()
		}
	}
	s.entries = make(map[string]*record)
	s.closed = true
	return nil
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// expired reports whether a record is past its deadline. Must be called
// with the mutex held.
func (s *Store) expired(rec *record) bool {
	return !rec.entry.ExpiresAt.IsZero() && !s.now().Before(rec.entry.ExpiresAt)
}

// scheduleRemoval arms the single-shot expiry for a record. The callback
// removes the key only if the record is still the one it was armed for, so
// a fired timer never deletes a successor entry under the same key. Must be
// called with the mutex held.
func (s *Store) scheduleRemoval(key string, rec *record, ttl time.Duration) *time.Timer {
	if ttl <= 0 {
		return nil
	}
	return time.AfterFunc(ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if current, ok := s.entries[key]; ok && current == rec {
			delete(s.entries, key)
		}
	})
}
