package throttle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RateLimitedError carries the platform's explicit retry-after signal. The
// engine sleeps exactly RetryAfter before retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// TransientError marks a recoverable failure (network reset, timeout,
// 5xx-class response) worth an exponential-backoff retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError marks a missing or wrong-typed platform entity. Never
// retried within a cycle.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return "not found: " + e.ID }

// PermissionError marks a denied platform call, usually a topology access
// misconfiguration. Never retried.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string { return "permission denied: " + e.Op }

// ErrBudgetExhausted wraps the final error once the retry budget runs out.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// IsRetryable reports whether err is worth another attempt: an explicit
// rate-limit signal or a transient failure. Permission and not-found errors
// propagate immediately, as does context cancellation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var tr *TransientError
	if errors.As(err, &tr) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// RetryAfterOf extracts an explicit retry-after duration, if err carries one.
func RetryAfterOf(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
