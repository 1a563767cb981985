package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeClock drives the engine deterministically: sleeps advance virtual time
// instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

func newTestEngine(cfg Config, clock *fakeClock) *Engine {
	e := New(cfg, zap.NewNop())
	e.now = clock.now
	e.sleep = clock.sleep
	return e
}

func TestSlidingWindowBound(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{
		RequestsPerSecond: 8,
		Retry:             RetryPolicy{MaxAttempts: 1},
	}, clock)

	var admitted []time.Time
	for i := 0; i < 50; i++ {
		err := e.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) error {
			admitted = append(admitted, clock.now())
			return nil
		})
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	if len(admitted) != 50 {
		t.Fatalf("admitted = %d, want 50", len(admitted))
	}
	// No 1-second window may ever contain more than 8 admissions.
	for i, ts := range admitted {
		count := 0
		for _, other := range admitted {
			d := ts.Sub(other)
			if d >= 0 && d < time.Second {
				count++
			}
		}
		if count > 8 {
			t.Fatalf("admission %d: window holds %d calls, budget is 8", i, count)
		}
	}
}

func TestBaseDelaySpacing(t *testing.T) {
	const baseDelay = 100 * time.Millisecond
	clock := newFakeClock()
	e := newTestEngine(Config{
		RequestsPerSecond: 100,
		BaseDelay:         baseDelay,
		Retry:             RetryPolicy{MaxAttempts: 1},
	}, clock)

	if e.spacing.Limit() != 10 {
		t.Fatalf("spacing limit = %v, want 10/s", e.spacing.Limit())
	}

	// Two back-to-back calls: the first admits immediately, the second must
	// wait out the inter-call spacing.
	for i := 0; i < 2; i++ {
		if err := e.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	if len(clock.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly one spacing wait", clock.sleeps)
	}
	// The spacing limiter runs on the wall clock, so the recorded wait is the
	// base delay minus the sliver of real time between the two calls.
	if d := clock.sleeps[0]; d <= baseDelay/2 || d > baseDelay {
		t.Fatalf("spacing wait = %v, want ~%v", d, baseDelay)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{
		RequestsPerSecond: 100,
		Retry:             RetryPolicy{MaxAttempts: 3, BackoffBase: time.Second, BackoffCap: time.Minute},
	}, clock)

	calls := 0
	err := e.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &RateLimitedError{RetryAfter: 750 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}

	found := 0
	for _, d := range clock.sleeps {
		if d == 750*time.Millisecond {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("retry-after sleeps = %d, want 2 (sleeps: %v)", found, clock.sleeps)
	}
}

func TestTransientBackoffExponential(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BackoffBase: 100 * time.Millisecond, BackoffCap: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
		{20, time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNonRetryablePropagatesImmediately(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{
		RequestsPerSecond: 100,
		Retry:             RetryPolicy{MaxAttempts: 5},
	}, clock)

	tests := []struct {
		name string
		err  error
	}{
		{"permission denied", &PermissionError{Op: "join"}},
		{"not found", &NotFoundError{ID: "123"}},
		{"plain error", errors.New("bad request")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := e.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) error {
				calls++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want 1 (no retry)", calls)
			}
		})
	}
}

func TestBudgetExhaustion(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{
		RequestsPerSecond: 100,
		Retry:             RetryPolicy{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond, BackoffCap: time.Second},
	}, clock)

	calls := 0
	boom := &TransientError{Err: errors.New("connection reset")}
	err := e.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return boom
	})
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("err = %v, want budget exhaustion", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, should wrap the last failure", err)
	}
}

func TestProcessBatchFailureIsolation(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{
		RequestsPerSecond: 100,
		BatchSize:         3,
		Retry:             RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond, BackoffCap: time.Millisecond},
	}, clock)

	items := []string{"a", "b", "c", "d", "e"}
	results := ProcessBatch(context.Background(), e, items, "test", func(ctx context.Context, item string) error {
		if item == "c" {
			return &PermissionError{Op: "join " + item}
		}
		return nil
	})

	if len(results) != len(items) {
		t.Fatalf("results = %d, want %d", len(results), len(items))
	}
	for _, r := range results {
		if r.Item == "c" {
			if r.Err == nil {
				t.Errorf("item c should have failed")
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("item %s failed: %v (sibling failure must not spread)", r.Item, r.Err)
		}
	}
}

func TestDoReturnsValue(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{RequestsPerSecond: 100, Retry: RetryPolicy{MaxAttempts: 1}}, clock)

	got, err := Do(context.Background(), e, "test", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do = (%d, %v), want (42, nil)", got, err)
	}
}

func TestStatusReportsWindow(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(Config{RequestsPerSecond: 8, Retry: RetryPolicy{MaxAttempts: 1}}, clock)

	for i := 0; i < 3; i++ {
		_ = e.ExecuteWithRetry(context.Background(), "test", func(ctx context.Context) error { return nil })
	}
	st := e.Status()
	if st.WindowCount != 3 {
		t.Fatalf("WindowCount = %d, want 3", st.WindowCount)
	}
	if st.RequestsPerSecond != 8 {
		t.Fatalf("RequestsPerSecond = %d, want 8", st.RequestsPerSecond)
	}
}
