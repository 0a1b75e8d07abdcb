package credguard

import (
	"context"
	"errors"
	"time"

	"github.com/hatchsec/credguard/instrumentation"
	"github.com/hatchsec/credguard/storage"
)

// instrumentedStore wraps a CounterStore and records an operation
// counter and duration histogram for every call. It sits between the
// limiter and whichever backend was selected, so all backends report
// the same metrics.
type instrumentedStore struct {
	store   storage.CounterStore
	metrics *instrumentation.Metrics
}

// Compile-time interface check
var _ storage.CounterStore = (*instrumentedStore)(nil)

func newInstrumentedStore(store storage.CounterStore, metrics *instrumentation.Metrics) *instrumentedStore {
	return &instrumentedStore{store: store, metrics: metrics}
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (*storage.Entry, error) {
	start := time.Now()
	entry, err := s.store.Get(ctx, key)
	s.record(ctx, "get", err, start)
	return entry, err
}

func (s *instrumentedStore) Set(ctx context.Context, key string, entry *storage.Entry, ttl time.Duration) error {
	start := time.Now()
	err := s.store.Set(ctx, key, entry, ttl)
	s.record(ctx, "set", err, start)
	return err
}

func (s *instrumentedStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	start := time.Now()
	count, err := s.store.Increment(ctx, key, ttl)
	s.record(ctx, "increment", err, start)
	return count, err
}

func (s *instrumentedStore) Clear(ctx context.Context, prefix string) error {
	start := time.Now()
	err := s.store.Clear(ctx, prefix)
	s.record(ctx, "clear", err, start)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.store.Close()
}

func (s *instrumentedStore) record(ctx context.Context, operation string, err error, start time.Time) {
	durationMs := float64(time.Since(start).Milliseconds())
	s.metrics.RecordStorageOperation(ctx, operation, storageResult(err), durationMs)
}

// storageResult classifies an operation outcome for the metrics
// result attribute. A missing key is its own bucket: it is routine
// during window rollover, not a failure.
func storageResult(err error) string {
	switch {
	case err == nil:
		return instrumentation.ResultSuccess
	case errors.Is(err, storage.ErrNotFound):
		return instrumentation.ResultNotFound
	default:
		return instrumentation.ResultError
	}
}
