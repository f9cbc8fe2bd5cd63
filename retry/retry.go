// Package retry executes operations with bounded retries and exponential
// backoff with jitter.
//
// Retry eligibility is decided by a pluggable classifier; by default the
// errdef taxonomy is used, so network, timeout, rate-limited and server
// errors are retried while client errors fail fast. Rate-limited errors
// carrying a server wait hint are delayed by the hint instead of the
// computed backoff.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/finvue/resilience/errdef"
)

// Policy configures retry behavior. A Policy is immutable per call site.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// JitterRatio randomizes each delay by ±ratio (0.0 to 1.0).
	JitterRatio float64
	// Classifier decides whether an error is worth retrying.
	// Defaults to errdef.IsRetryable.
	Classifier func(error) bool
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		JitterRatio: 0.2,
		Classifier:  errdef.IsRetryable,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Classifier == nil {
		p.Classifier = errdef.IsRetryable
	}
	return p
}

// Do executes fn with retries under the given policy.
//
// A non-retryable error surfaces immediately after a single attempt.
// Once attempts are exhausted the last error is returned wrapped in
// *errdef.ExhaustedError with the attempt count attached.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	policy = policy.withDefaults()

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.Classifier(err) {
			return zero, err
		}

		// No sleep after the final attempt.
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := delayFor(attempt, policy, err)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, &errdef.ExhaustedError{Attempts: policy.MaxAttempts, Last: lastErr}
}

// DoFunc executes a function that returns only an error.
func DoFunc(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// delayFor picks the sleep before the next attempt. A server-supplied
// rate-limit hint wins over the computed backoff.
func delayFor(attempt int, policy Policy, err error) time.Duration {
	if hint, ok := errdef.RetryAfterHint(err); ok {
		return hint
	}
	return Backoff(attempt, policy)
}

// Backoff computes the exponential backoff with jitter for an attempt
// (0-based). It is a pure function of its inputs apart from the jitter
// randomness.
func Backoff(attempt int, policy Policy) time.Duration {
	policy = policy.withDefaults()

	d := float64(policy.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(policy.MaxDelay) {
		d = float64(policy.MaxDelay)
	}

	if policy.JitterRatio > 0 {
		span := d * policy.JitterRatio
		d += (rand.Float64()*2 - 1) * span
	}

	if d < 0 {
		d = float64(policy.BaseDelay)
	}
	return time.Duration(d)
}
