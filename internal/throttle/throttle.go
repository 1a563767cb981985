package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caelusway/bio-sync-bot-sub000/internal/metrics"
)

// RetryPolicy configures the retry behavior of an Engine. A platform-supplied
// retry-after always overrides the computed backoff.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Backoff returns the exponential delay for the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BackoffBase << (attempt - 1)
	if d > p.BackoffCap || d <= 0 {
		return p.BackoffCap
	}
	return d
}

// Config holds the throttling parameters of an Engine.
type Config struct {
	RequestsPerSecond int
	BaseDelay         time.Duration
	BatchSize         int
	BatchDelay        time.Duration
	Retry             RetryPolicy
}

// safetyBuffer is added to window waits so a call never lands exactly on the
// second boundary the platform measures against.
const safetyBuffer = 50 * time.Millisecond

const window = time.Second

// Engine gates every outbound platform call behind a sliding 1-second
// admission window plus a minimum inter-call spacing, and retries failures
// according to the policy. One Engine instance is shared by all callers; its
// window bookkeeping is serialized, the calls themselves are not.
type Engine struct {
	cfg     Config
	spacing *rate.Limiter
	logger  *zap.Logger

	mu         sync.Mutex
	admissions []time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Status is a point-in-time view of the engine for health reporting.
type Status struct {
	WindowCount       int           `json:"window_count"`
	RequestsPerSecond int           `json:"requests_per_second"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxAttempts       int           `json:"max_attempts"`
}

func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BackoffBase <= 0 {
		cfg.Retry.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Retry.BackoffCap <= 0 {
		cfg.Retry.BackoffCap = 10 * time.Second
	}
	spacing := rate.NewLimiter(rate.Inf, 1)
	if cfg.BaseDelay > 0 {
		spacing = rate.NewLimiter(rate.Every(cfg.BaseDelay), 1)
	}
	return &Engine{
		cfg:     cfg,
		spacing: spacing,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Status reports the current window occupancy and configuration.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked(e.now())
	return Status{
		WindowCount:       len(e.admissions),
		RequestsPerSecond: e.cfg.RequestsPerSecond,
		BaseDelay:         e.cfg.BaseDelay,
		MaxAttempts:       e.cfg.Retry.MaxAttempts,
	}
}

func (e *Engine) pruneLocked(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(e.admissions) && !e.admissions[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.admissions = append(e.admissions[:0], e.admissions[i:]...)
	}
}

// admit blocks until the sliding window has room, then records the admission.
// The wait happens outside the lock so unrelated callers are not blocked.
func (e *Engine) admit(ctx context.Context) error {
	r := e.spacing.Reserve()
	if d := r.Delay(); d > 0 {
		if err := e.sleep(ctx, d); err != nil {
			r.Cancel()
			return err
		}
	}
	for {
		e.mu.Lock()
		now := e.now()
		e.pruneLocked(now)
		if len(e.admissions) < e.cfg.RequestsPerSecond {
			e.admissions = append(e.admissions, now)
			e.mu.Unlock()
			return nil
		}
		wait := e.admissions[0].Add(window).Sub(now) + safetyBuffer
		e.mu.Unlock()

		metrics.ThrottleWaits.Inc()
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// ExecuteWithRetry admits op through the throttle and retries it per the
// policy: explicit retry-after signals are honored verbatim, transient
// failures back off exponentially, everything else propagates immediately.
func (e *Engine) ExecuteWithRetry(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.Retry.MaxAttempts; attempt++ {
		if err := e.admit(ctx); err != nil {
			return err
		}
		metrics.APICalls.WithLabelValues(label).Inc()

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == e.cfg.Retry.MaxAttempts {
			break
		}

		delay := e.cfg.Retry.Backoff(attempt)
		if after, ok := RetryAfterOf(lastErr); ok {
			delay = after
			metrics.RateLimitHits.WithLabelValues(label).Inc()
		}
		metrics.APIRetries.WithLabelValues(label).Inc()
		e.logger.Warn("retrying operation",
			zap.String("operation", label),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(lastErr))
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", label, ErrBudgetExhausted, lastErr)
}

// Do is ExecuteWithRetry for operations that return a value.
func Do[T any](ctx context.Context, e *Engine, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.ExecuteWithRetry(ctx, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// BatchResult is the per-item outcome of ProcessBatch.
type BatchResult[T any] struct {
	Item T
	Err  error
}

// ProcessBatch runs op over items in fixed-size batches. Items within a batch
// run concurrently, each under its own retry budget; one item exhausting its
// retries fails that item only. A fixed delay separates batches to keep
// admission pressure on the shared window bounded.
func ProcessBatch[T any](ctx context.Context, e *Engine, items []T, label string, op func(ctx context.Context, item T) error) []BatchResult[T] {
	results := make([]BatchResult[T], len(items))
	size := e.cfg.BatchSize

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = BatchResult[T]{
					Item: items[i],
					Err:  e.ExecuteWithRetry(ctx, label, func(ctx context.Context) error { return op(ctx, items[i]) }),
				}
			}()
		}
		wg.Wait()

		if end < len(items) && e.cfg.BatchDelay > 0 {
			if err := e.sleep(ctx, e.cfg.BatchDelay); err != nil {
				for i := end; i < len(items); i++ {
					results[i] = BatchResult[T]{Item: items[i], Err: err}
				}
				return results
			}
		}
	}
	return results
}
