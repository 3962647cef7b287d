// Package retry runs fallible operations with exponential backoff and exposes
// named policies for the external services the pipeline talks to.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrAttemptTimeout is reported when a single attempt exceeds Options.AttemptTimeout.
var ErrAttemptTimeout = errors.New("attempt timeout exceeded")

// Options configures a single Execute call.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// AttemptTimeout bounds each individual attempt. Zero means no per-attempt limit.
	AttemptTimeout time.Duration
	// ShouldRetry decides whether a failed attempt is worth repeating. Nil retries everything.
	ShouldRetry func(err error) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMultiplier  = 2.0
)

// DefaultOptions returns the baseline budget every policy starts from.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Multiplier:  defaultMultiplier,
	}
}

// Merge returns a copy of o where every non-zero field of override wins.
func (o Options) Merge(override Options) Options {
	if override.MaxAttempts > 0 {
		o.MaxAttempts = override.MaxAttempts
	}
	if override.BaseDelay > 0 {
		o.BaseDelay = override.BaseDelay
	}
	if override.MaxDelay > 0 {
		o.MaxDelay = override.MaxDelay
	}
	if override.Multiplier > 1 {
		o.Multiplier = override.Multiplier
	}
	if override.AttemptTimeout > 0 {
		o.AttemptTimeout = override.AttemptTimeout
	}
	if override.ShouldRetry != nil {
		o.ShouldRetry = override.ShouldRetry
	}
	if override.OnRetry != nil {
		o.OnRetry = override.OnRetry
	}
	return o
}

// Result is the outcome of Execute. Value is meaningful only when Success is
// true, Err only when it is false.
type Result[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// Execute runs op until it succeeds, the attempt budget is spent, ShouldRetry
// rejects the error, or ctx is cancelled while waiting. It never returns an
// error directly; the outcome is carried in the Result.
func Execute[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) Result[T] {
	opts = DefaultOptions().Merge(opts)
	start := time.Now()

	for attempt := 1; ; attempt++ {
		value, err := runAttempt(ctx, opts.AttemptTimeout, op)
		if err == nil {
			return Result[T]{Success: true, Value: value, Attempts: attempt, Elapsed: time.Since(start)}
		}

		if attempt >= opts.MaxAttempts || (opts.ShouldRetry != nil && !opts.ShouldRetry(err)) {
			return Result[T]{Err: err, Attempts: attempt, Elapsed: time.Since(start)}
		}

		delay := Backoff(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result[T]{
				Err:      fmt.Errorf("retry cancelled after attempt %d: %w (last error: %v)", attempt, ctx.Err(), err),
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
		case <-timer.C:
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()

	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err = op(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %v: %w", ErrAttemptTimeout, timeout, err)
	}
	return value, err
}

// Backoff computes min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
func Backoff(opts Options, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(opts.BaseDelay) * math.Pow(opts.Multiplier, float64(attempt-1))
	if opts.MaxDelay > 0 && delay > float64(opts.MaxDelay) {
		delay = float64(opts.MaxDelay)
	}
	return time.Duration(delay)
}
