package credguard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hatchsec/credguard/instrumentation"
	"github.com/hatchsec/credguard/storage"
)

// recordingStore is a CounterStore stub that logs which operations
// reached it and returns a scripted error.
type recordingStore struct {
	calls []string
	err   error
}

func (s *recordingStore) Get(_ context.Context, _ string) (*storage.Entry, error) {
	s.calls = append(s.calls, "get")
	if s.err != nil {
		return nil, s.err
	}
	return &storage.Entry{Count: 7}, nil
}

func (s *recordingStore) Set(_ context.Context, _ string, _ *storage.Entry, _ time.Duration) error {
	s.calls = append(s.calls, "set")
	return s.err
}

func (s *recordingStore) Increment(_ context.Context, _ string, _ time.Duration) (int64, error) {
	s.calls = append(s.calls, "increment")
	return 8, s.err
}

func (s *recordingStore) Clear(_ context.Context, _ string) error {
	s.calls = append(s.calls, "clear")
	return s.err
}

func (s *recordingStore) Close() error {
	s.calls = append(s.calls, "close")
	return s.err
}

func newTestMetrics(t *testing.T) *instrumentation.Metrics {
	t.Helper()
	instr, err := instrumentation.New(instrumentation.Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	return instr.Metrics()
}

func TestInstrumentedStoreDelegates(t *testing.T) {
	ctx := context.Background()
	stub := &recordingStore{}
	store := newInstrumentedStore(stub, newTestMetrics(t))

	entry, err := store.Get(ctx, "rl:user-a:100")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Count != 7 {
		t.Errorf("Get() count = %d, want 7", entry.Count)
	}

	count, err := store.Increment(ctx, "rl:user-a:100", time.Minute)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != 8 {
		t.Errorf("Increment() = %d, want 8", count)
	}

	if err := store.Set(ctx, "rl:user-a:100", &storage.Entry{Count: 1}, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Clear(ctx, "rl:user-a:"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []string{"get", "increment", "set", "clear", "close"}
	if len(stub.calls) != len(want) {
		t.Fatalf("backend saw %v, want %v", stub.calls, want)
	}
	for i, op := range want {
		if stub.calls[i] != op {
			t.Errorf("call %d = %q, want %q", i, stub.calls[i], op)
		}
	}
}

func TestInstrumentedStorePropagatesErrors(t *testing.T) {
	ctx := context.Background()
	stubErr := errors.New("backend down")
	store := newInstrumentedStore(&recordingStore{err: stubErr}, newTestMetrics(t))

	if _, err := store.Increment(ctx, "rl:user-a:100", time.Minute); !errors.Is(err, stubErr) {
		t.Errorf("Increment() error = %v, want %v", err, stubErr)
	}
	if _, err := store.Get(ctx, "rl:user-a:100"); !errors.Is(err, stubErr) {
		t.Errorf("Get() error = %v, want %v", err, stubErr)
	}
}

func TestStorageResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: instrumentation.ResultSuccess},
		{name: "not found", err: storage.ErrNotFound, want: instrumentation.ResultNotFound},
		{name: "wrapped not found", err: fmt.Errorf("get: %w", storage.ErrNotFound), want: instrumentation.ResultNotFound},
		{name: "other error", err: errors.New("timeout"), want: instrumentation.ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := storageResult(tt.err); got != tt.want {
				t.Errorf("storageResult(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
