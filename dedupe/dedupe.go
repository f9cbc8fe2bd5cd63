// Package dedupe collapses concurrent identical in-flight calls into a
// single shared execution.
//
// Callers issue reads through a Group keyed by a caller-built key
// (typically a hash of endpoint plus normalized parameters). While a call
// for a key is in flight, further calls with the same key wait on the same
// result instead of executing again. The registry entry is removed when
// the call settles, so the next call after settlement executes fresh.
//
// Deduplication is for reads only. Collapsing two writes into one could
// silently drop a write, so mutations must not be routed through a Group.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxAge is how long a flight may stay unsettled before the
// registry treats it as abandoned.
const DefaultMaxAge = 30 * time.Second

// Group deduplicates in-flight calls by key.
type Group[T any] struct {
	// MaxAge overrides DefaultMaxAge when positive.
	MaxAge time.Duration

	mu      sync.Mutex
	flights map[string]*flight[T]
}

// flight is one shared execution. The result is published by closing done.
type flight[T any] struct {
	done    chan struct{}
	val     T
	err     error
	started time.Time
}

// Do executes fn for key, or joins an existing in-flight execution of the
// same key and returns its result.
//
// The shared execution runs detached from any single caller's context:
// cancelling ctx abandons only this caller's wait, never the execution
// other waiters are joined to. A flight older than MaxAge is treated as
// hung and replaced; its eventual result is discarded by the registry.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	g.mu.Lock()
	if g.flights == nil {
		g.flights = make(map[string]*flight[T])
	}

	now := time.Now()
	if f, ok := g.flights[key]; ok && now.Sub(f.started) <= g.maxAge() {
		g.mu.Unlock()
		return g.wait(ctx, f)
	}

	f := &flight[T]{done: make(chan struct{}), started: now}
	g.flights[key] = f
	g.mu.Unlock()

	go g.run(f, key, ctx, fn)
	return g.wait(ctx, f)
}

// run executes fn and settles the flight. The registry entry is removed
// on settlement unless a stale replacement already took the key.
func (g *Group[T]) run(f *flight[T], key string, ctx context.Context, fn func(ctx context.Context) (T, error)) {
	f.val, f.err = fn(context.WithoutCancel(ctx))
	close(f.done)

	g.mu.Lock()
	if g.flights[key] == f {
		delete(g.flights, key)
	}
	g.mu.Unlock()
}

// wait blocks until the flight settles or the caller's context is done.
func (g *Group[T]) wait(ctx context.Context, f *flight[T]) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Forget removes the flight for key, if any. A subsequent Do executes
// fresh; the forgotten flight settles independently.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.flights, key)
	g.mu.Unlock()
}

// Len returns the number of registered in-flight keys.
func (g *Group[T]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flights)
}

func (g *Group[T]) maxAge() time.Duration {
	if g.MaxAge > 0 {
		return g.MaxAge
	}
	return DefaultMaxAge
}
