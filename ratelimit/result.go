package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Result is the outcome of a single rate-limit check. Produced fresh per
// check, never stored.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool
	// Remaining is the token balance after the check.
	Remaining float64
	// ResetIn is how long until the limit recovers: on deny, the wait
	// until the next request would be admitted; on admit, the time until
	// the bucket refills to capacity.
	ResetIn time.Duration
	// Limit is the bucket capacity for the caller's tier.
	Limit float64
}

// Standard rate-limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// SetHeaders writes the standard X-RateLimit-* headers for this result.
func (r Result) SetHeaders(h http.Header) {
	h.Set(HeaderLimit, strconv.FormatInt(int64(r.Limit), 10))
	h.Set(HeaderRemaining, strconv.FormatInt(int64(math.Floor(r.Remaining)), 10))
	h.Set(HeaderReset, strconv.FormatInt(int64(r.ResetIn.Seconds()), 10))
}
