package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hatchsec/credguard/internal/testutil"
	"github.com/hatchsec/credguard/storage"
	"github.com/hatchsec/credguard/storage/memory"
)

// failingStore simulates a storage backend outage.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*storage.Entry, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, *storage.Entry, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingStore) Clear(context.Context, string) error { return errors.New("connection refused") }
func (failingStore) Close() error                        { return nil }

func newTestLimiter(t *testing.T, policy FailurePolicy) (*Limiter, *memory.Store, *testutil.MockTime) {
	t.Helper()

	store := memory.New()
	t.Cleanup(func() { store.Close() })

	clock := testutil.NewMockTime(time.UnixMilli(1700000000000))
	store.SetClock(clock.Now)

	l, err := NewLimiter(LimiterConfig{Store: store, Policy: policy})
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	l.SetClock(clock.Now)
	return l, store, clock
}

func TestNewLimiter_RequiresStore(t *testing.T) {
	if _, err := NewLimiter(LimiterConfig{}); err == nil {
		t.Error("NewLimiter() with nil store should fail")
	}
}

func TestLimiter_Check_WindowCounting(t *testing.T) {
	l, _, _ := newTestLimiter(t, FailOpen)
	ctx := context.Background()

	const limit = 3
	window := time.Minute

	wantRemaining := []int{2, 1, 0}
	for i, want := range wantRemaining {
		res := l.Check(ctx, "user-a", limit, window)
		if res.Limited {
			t.Errorf("Check() call %d limited = true, want false", i+1)
		}
		if res.Remaining != want {
			t.Errorf("Check() call %d remaining = %d, want %d", i+1, res.Remaining, want)
		}
	}

	res := l.Check(ctx, "user-a", limit, window)
	if !res.Limited {
		t.Error("Check() 4th call limited = false, want true")
	}
	if res.Remaining != 0 {
		t.Errorf("Check() 4th call remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter <= 0 {
		t.Errorf("Check() 4th call retryAfter = %v, want > 0", res.RetryAfter)
	}
	if res.RetryAfter > window {
		t.Errorf("Check() retryAfter = %v, want <= window %v", res.RetryAfter, window)
	}
}

func TestLimiter_Check_WindowReset(t *testing.T) {
	l, _, clock := newTestLimiter(t, FailOpen)
	ctx := context.Background()

	const limit = 2
	window := time.Minute

	l.Check(ctx, "user-a", limit, window)
	l.Check(ctx, "user-a", limit, window)
	if res := l.Check(ctx, "user-a", limit, window); !res.Limited {
		t.Fatal("Check() should be limited after exhausting quota")
	}

	// Advancing past the window boundary starts a fresh counter.
	clock.Advance(window + time.Second)

	res := l.Check(ctx, "user-a", limit, window)
	if res.Limited {
		t.Error("Check() after window reset limited = true, want false")
	}
	if res.Remaining != limit-1 {
		t.Errorf("Check() after window reset remaining = %d, want %d", res.Remaining, limit-1)
	}
}

func TestLimiter_Check_IdentifierIsolation(t *testing.T) {
	l, _, _ := newTestLimiter(t, FailOpen)
	ctx := context.Background()

	const limit = 2
	window := time.Minute

	l.Check(ctx, "user-a", limit, window)
	l.Check(ctx, "user-a", limit, window)
	if res := l.Check(ctx, "user-a", limit, window); !res.Limited {
		t.Fatal("user-a should be limited")
	}

	if res := l.Check(ctx, "user-b", limit, window); res.Limited {
		t.Error("user-b limited = true, want false (separate counter)")
	}
}

func TestLimiter_Status_DoesNotConsumeQuota(t *testing.T) {
	l, _, _ := newTestLimiter(t, FailOpen)
	ctx := context.Background()

	const limit = 3
	window := time.Minute

	// Fresh identifier reports full quota.
	res := l.Status(ctx, "user-a", limit, window)
	if res.Limited || res.Remaining != limit {
		t.Errorf("Status() fresh = {limited:%v remaining:%d}, want {false %d}", res.Limited, res.Remaining, limit)
	}

	l.Check(ctx, "user-a", limit, window)

	// Repeated status probes must not change the count.
	for i := 0; i < 5; i++ {
		res = l.Status(ctx, "user-a", limit, window)
	}
	if res.Remaining != limit-1 {
		t.Errorf("Status() after 1 check = remaining %d, want %d", res.Remaining, limit-1)
	}
}

func TestLimiter_Status_AtLimit(t *testing.T) {
	l, _, _ := newTestLimiter(t, FailOpen)
	ctx := context.Background()

	const limit = 2
	window := time.Minute

	l.Check(ctx, "user-a", limit, window)
	l.Check(ctx, "user-a", limit, window)

	res := l.Status(ctx, "user-a", limit, window)
	if !res.Limited {
		t.Error("Status() at limit limited = false, want true")
	}
	if res.Remaining != 0 {
		t.Errorf("Status() at limit remaining = %d, want 0", res.Remaining)
	}
}

func TestLimiter_Clear(t *testing.T) {
	l, _, _ := newTestLimiter(t, FailOpen)
	ctx := context.Background()

	const limit = 1
	window := time.Minute

	l.Check(ctx, "user-a", limit, window)
	if res := l.Check(ctx, "user-a", limit, window); !res.Limited {
		t.Fatal("user-a should be limited")
	}

	if err := l.Clear(ctx, "user-a"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if res := l.Check(ctx, "user-a", limit, window); res.Limited {
		t.Error("Check() after Clear limited = true, want false")
	}
}

func TestLimiter_StorageFailurePolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      FailurePolicy
		wantLimited bool
	}{
		{name: "fail closed in production", policy: FailClosed, wantLimited: true},
		{name: "fail open in development", policy: FailOpen, wantLimited: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLimiter(LimiterConfig{Store: failingStore{}, Policy: tt.policy})
			if err != nil {
				t.Fatalf("NewLimiter() error = %v", err)
			}

			res := l.Check(context.Background(), "user-a", 3, time.Minute)
			if res.Limited != tt.wantLimited {
				t.Errorf("Check() limited = %v, want %v", res.Limited, tt.wantLimited)
			}
			if tt.wantLimited && res.RetryAfter <= 0 {
				t.Errorf("Check() fail-closed retryAfter = %v, want > 0", res.RetryAfter)
			}

			res = l.Status(context.Background(), "user-a", 3, time.Minute)
			if res.Limited != tt.wantLimited {
				t.Errorf("Status() limited = %v, want %v", res.Limited, tt.wantLimited)
			}
		})
	}
}

func TestLimiter_RetryAfterSeconds(t *testing.T) {
	res := Result{RetryAfter: 42 * time.Second}
	if got := res.RetryAfterSeconds(); got != 42 {
		t.Errorf("RetryAfterSeconds() = %d, want 42", got)
	}
}

func TestWindowStart(t *testing.T) {
	window := time.Minute
	now := time.UnixMilli(1700000042123)

	start := windowStart(now, window)
	if start.UnixMilli()%window.Milliseconds() != 0 {
		t.Errorf("windowStart() = %v, not aligned to window boundary", start)
	}
	if start.After(now) {
		t.Errorf("windowStart() = %v, after now %v", start, now)
	}
	if now.Sub(start) >= window {
		t.Errorf("windowStart() = %v, more than one window before now", start)
	}
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{name: "zero", in: 0, want: 0},
		{name: "negative", in: -time.Second, want: 0},
		{name: "exact second", in: 3 * time.Second, want: 3 * time.Second},
		{name: "rounds up", in: 2500 * time.Millisecond, want: 3 * time.Second},
		{name: "sub-second remainder", in: 10 * time.Millisecond, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ceilSeconds(tt.in); got != tt.want {
				t.Errorf("ceilSeconds(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
