package errdef

import (
	"fmt"
	"time"
)

// RateLimitError is returned when the local limiter denies a request.
// It carries how long the caller should wait before trying again.
type RateLimitError struct {
	// ResetIn is the time until the request would next be admitted.
	ResetIn time.Duration
	// Limit is the bucket capacity for the caller's tier.
	Limit float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.ResetIn.Round(time.Second))
}

// ExhaustedError is returned once every retry attempt has failed.
// It wraps the last error observed.
type ExhaustedError struct {
	// Attempts is the number of attempts made.
	Attempts int
	// Last is the error from the final attempt.
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the error from the final attempt so classification
// helpers see through the exhaustion wrapper.
func (e *ExhaustedError) Unwrap() error { return e.Last }
