// Package retry provides generic retry-with-backoff over fallible
// operations. Which errors are worth retrying is entirely the caller's call,
// supplied as a predicate.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Options configures one retry loop. The zero value retries nothing.
type Options struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	IsRetryable func(error) bool
	OnRetry     func(attempt int, err error) // fired before each backoff wait
}

// Defaults fills unset fields with working values.
func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 60 * time.Second
	}
	if o.Multiplier <= 1 {
		o.Multiplier = 2
	}
	return o
}

// Do runs fn until it succeeds, fails permanently, or exhausts
// opts.MaxRetries. It returns the value, the number of retries performed,
// and the final error. A success after K retryable failures reports K.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context) (T, error)) (T, int, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err

		if attempt >= opts.MaxRetries {
			return zero, attempt, lastErr
		}
		if opts.IsRetryable != nil && !opts.IsRetryable(err) {
			return zero, attempt, lastErr
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}

		select {
		case <-time.After(Backoff(opts, attempt)):
		case <-ctx.Done():
			return zero, attempt, ctx.Err()
		}
	}
}

// Backoff computes the capped exponential delay for the given zero-based
// attempt, plus up to 10% random jitter.
func Backoff(opts Options, attempt int) time.Duration {
	opts = opts.withDefaults()
	d := float64(opts.BaseDelay) * math.Pow(opts.Multiplier, float64(attempt))
	if d > float64(opts.MaxDelay) {
		d = float64(opts.MaxDelay)
	}
	jitter := rand.Float64() * 0.1 * d
	return time.Duration(d + jitter)
}
