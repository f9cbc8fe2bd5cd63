package ratelimit

import (
	"math"
	"sync"
	"time"
)

// tolerance absorbs float drift from fractional refill so an exact-capacity
// burst is admitted in full.
const tolerance = 1e-9

// bucket holds per-key token state. A new bucket starts full so a caller's
// first burst up to capacity is never throttled.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func newBucket(tier Tier, now time.Time) *bucket {
	return &bucket{
		tokens:     tier.MaxTokens,
		lastRefill: now,
		lastAccess: now,
	}
}

// take performs the refill-then-debit transaction. Refill always happens;
// the debit only on admit. Serialized per bucket by the bucket mutex.
func (b *bucket) take(tier Tier, now time.Time) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(tier.MaxTokens, b.tokens+elapsed*tier.RefillPerSecond)
	}
	b.lastRefill = now
	b.lastAccess = now

	allowed := b.tokens+tolerance >= tier.CostPerRequest
	if allowed {
		b.tokens -= tier.CostPerRequest
		if b.tokens < 0 {
			b.tokens = 0
		}
	}

	return Result{
		Allowed:   allowed,
		Remaining: b.tokens,
		ResetIn:   resetIn(allowed, b.tokens, tier),
		Limit:     tier.MaxTokens,
	}
}

// resetIn computes how long until the bucket recovers. On deny this is the
// wait until the next request would be admitted; on admit it is the time
// until the bucket is full again.
func resetIn(allowed bool, tokens float64, tier Tier) time.Duration {
	var deficit float64
	if allowed {
		deficit = tier.MaxTokens - tokens
	} else {
		deficit = tier.CostPerRequest - tokens
	}
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / tier.RefillPerSecond * float64(time.Second))
}

// idleSince reports whether the bucket has not been touched since cutoff.
func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAccess.Before(cutoff)
}
