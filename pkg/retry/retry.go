// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is wrapped by the error returned when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often and how far apart attempts are made.
// Multiplier <= 1 keeps the interval fixed.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	// InitialDelay is waited before the first attempt.
	InitialDelay time.Duration
}

// Fixed returns a policy with a constant interval between attempts.
func Fixed(attempts int, interval time.Duration) Policy {
	return Policy{MaxAttempts: attempts, Interval: interval}
}

// Result reports how a Do call went.
type Result struct {
	Attempts int
	Err      error
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts
// run out or ctx is done. onRetry, when non-nil, is called after each failed
// attempt that will be retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) Result {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	if p.InitialDelay > 0 {
		if err := sleep(ctx, p.InitialDelay); err != nil {
			return Result{Err: err}
		}
	}

	wait := p.Interval
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return Result{Attempts: attempt}
		}
		lastErr = err

		var perm *permanent
		if errors.As(err, &perm) {
			return Result{Attempts: attempt, Err: perm.err}
		}
		if attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return Result{Attempts: attempt, Err: err}
		}
		wait = p.next(wait)
	}

	return Result{
		Attempts: attempts,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr),
	}
}

func (p Policy) next(current time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return current
	}
	n := time.Duration(float64(current) * p.Multiplier)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		n = p.MaxInterval
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
