package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/finvue/resilience/logger"
)

const shardCount = 16

// Config configures a Limiter.
type Config struct {
	// Tiers is the closed tier table. Defaults to DefaultTiers().
	Tiers []Tier
	// IdleTTL is how long an untouched bucket survives before eviction.
	IdleTTL time.Duration
	// SweepInterval is how often the eviction sweep runs.
	SweepInterval time.Duration
	// OnDeny is called when a request is denied.
	OnDeny func(identity, tier string)
	// Logger receives sweep diagnostics. Defaults to the global logger.
	Logger *logger.Logger
}

// Limiter maps caller identity and tier to a token bucket and answers
// admit/deny. It never returns an error: the decision is the result.
//
// Bucket state is sharded by key so unrelated identities do not contend
// on a single lock; checks on the same key serialize on that bucket.
type Limiter struct {
	cfg      Config
	tiers    map[string]Tier
	fallback Tier
	shards   [shardCount]*shard
	log      *logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a limiter from config.
func NewLimiter(cfg Config) *Limiter {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobalLogger()
	}

	tiers := make(map[string]Tier, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		tiers[t.Name] = t
	}

	l := &Limiter{
		cfg:      cfg,
		tiers:    tiers,
		fallback: mostRestrictive(cfg.Tiers),
		log:      cfg.Logger.WithComponent("rate-limiter"),
		stopChan: make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{buckets: make(map[string]*bucket)}
	}
	return l
}

// Check runs the refill-then-debit transaction for the identity's bucket.
// Unknown tier names fall back to the most restrictive tier.
func (l *Limiter) Check(identity, tierName string) Result {
	return l.checkAt(identity, tierName, time.Now())
}

// checkAt is Check with an injectable clock for tests.
func (l *Limiter) checkAt(identity, tierName string, now time.Time) Result {
	tier, ok := l.tiers[tierName]
	if !ok {
		tier = l.fallback
	}

	key := tier.Name + ":" + identity
	b := l.bucketFor(key, tier, now)
	res := b.take(tier, now)

	if !res.Allowed && l.cfg.OnDeny != nil {
		l.cfg.OnDeny(identity, tier.Name)
	}
	return res
}

// bucketFor returns the bucket for key, creating it full on first use.
func (l *Limiter) bucketFor(key string, tier Tier, now time.Time) *bucket {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = newBucket(tier, now)
		s.buckets[key] = b
	}
	return b
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// StartSweep starts the background eviction goroutine. It stops when ctx
// is cancelled or Stop is called.
func (l *Limiter) StartSweep(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.sweep(time.Now())
			}
		}
	}()
}

// sweep evicts buckets untouched for longer than IdleTTL. Evicting an idle
// bucket discards unused tokens; refill would have capped them at capacity
// anyway.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.cfg.IdleTTL)
	evicted := 0

	for _, s := range l.shards {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.idleSince(cutoff) {
				delete(s.buckets, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}

	if evicted > 0 {
		l.log.Debug("evicted idle buckets", logger.Fields(
			"evicted", evicted,
			"remaining", l.Size(),
		))
	}
}

// Stop halts the eviction goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *Limiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// Size returns the number of tracked buckets across all shards.
func (l *Limiter) Size() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.buckets)
		s.mu.Unlock()
	}
	return total
}
