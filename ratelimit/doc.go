// Package ratelimit provides a tiered token-bucket rate limiter.
//
// Each caller identity gets its own continuously-refilled bucket sized by
// the caller's subscription tier. Buckets are created lazily on first use,
// start full so an initial burst up to capacity is never throttled, and are
// evicted after a period of inactivity to bound memory.
//
//	limiter := ratelimit.NewLimiter(ratelimit.Config{Tiers: ratelimit.DefaultTiers()})
//	limiter.StartSweep(ctx)
//	defer limiter.Stop()
//
//	res := limiter.Check("user-42", "pro")
//	if !res.Allowed {
//	    // reject with res.ResetIn
//	}
package ratelimit
