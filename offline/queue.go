// Package offline provides a durable FIFO queue for mutations captured
// while the backend is unreachable, replayed in order once connectivity
// returns.
//
// Every enqueue and removal is persisted through a Store so pending
// mutations survive process restarts. A drain replays operations strictly
// in enqueue order and stops at the first operation that still fails
// after retries: later operations may be causally dependent on earlier
// ones (create-then-update of the same resource) and must not apply
// ahead of them.
package offline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/finvue/resilience/errdef"
	"github.com/finvue/resilience/logger"
	"github.com/finvue/resilience/observability"
	"github.com/finvue/resilience/retry"
)

// Handler replays one operation against the live backend. Implementations
// must send op.ID as the idempotency key so at-least-once delivery after a
// crash is safe.
type Handler func(ctx context.Context, op Operation) error

// Options configures a Queue.
type Options struct {
	// Store persists the queue. Defaults to an in-memory store.
	Store Store
	// Handler replays operations during a drain. Required.
	Handler Handler
	// Retry is the per-operation replay policy.
	Retry retry.Policy
	// Signal triggers automatic drains on reconnect. Optional.
	Signal Signal
	// Logger receives queue diagnostics. Defaults to the global logger.
	Logger *logger.Logger
	// OnDepthChange is called with the queue length after every
	// enqueue/removal. Optional.
	OnDepthChange func(depth int)
	// Metrics receives the queue depth gauge and drain duration histogram.
	// Nil disables recording.
	Metrics *observability.Metrics
}

// Report describes the partial progress of a drain.
type Report struct {
	// Succeeded lists operations confirmed and removed, in replay order.
	Succeeded []uuid.UUID
	// StoppedAt is the operation that halted the drain, if any.
	StoppedAt uuid.UUID
	// Reason is why the drain stopped early; nil when it ran to empty.
	Reason error
}

// Complete reports whether the drain emptied the queue.
func (r Report) Complete() bool { return r.Reason == nil }

// Queue is a durable FIFO of pending mutations.
//
// Enqueue is safe from any goroutine, including concurrently with an
// active drain. Drains are sequential by design: concurrent Drain calls
// collapse into the one already running.
type Queue struct {
	opts Options
	log  *logger.Logger

	mu  sync.Mutex
	ops []Operation

	draining atomic.Bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewQueue creates a queue, loading any persisted operations from the
// store.
func NewQueue(opts Options) (*Queue, error) {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobalLogger()
	}

	ops, err := opts.Store.Load()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		opts:     opts,
		log:      opts.Logger.WithComponent("offline-queue"),
		ops:      ops,
		stopChan: make(chan struct{}),
	}
	if len(ops) > 0 {
		q.log.Info("restored pending operations", logger.Fields(logger.FieldQueueLen, len(ops)))
		q.notifyDepth(len(ops))
	}
	return q, nil
}

// Enqueue appends op and persists the queue before returning.
func (q *Queue) Enqueue(op Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append(q.ops, op)
	if err := q.opts.Store.Save(q.ops); err != nil {
		// Keep the in-memory copy; a later save may succeed.
		q.log.WithError(err).Error("failed to persist enqueue")
		return err
	}

	q.notifyDepth(len(q.ops))
	q.log.Debug("operation queued", logger.Fields(
		"id", op.ID.String(),
		"kind", string(op.Kind),
		"resource", op.Resource,
	))
	return nil
}

// Pending returns a copy of the queued operations in order.
func (q *Queue) Pending() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Remove deletes a queued operation by ID and persists the change.
// It reports whether the operation was present. Intended for manual
// intervention on permanently-failing operations.
func (q *Queue) Remove(id uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			if err := q.opts.Store.Save(q.ops); err != nil {
				return true, err
			}
			q.notifyDepth(len(q.ops))
			return true, nil
		}
	}
	return false, nil
}

// Drain replays queued operations in enqueue order until the queue is
// empty, the context is cancelled, or an operation still fails after
// retries. It never propagates a replay failure as its own error; the
// Report carries the partial progress. Concurrent calls collapse: the
// loser returns immediately with an empty report.
func (q *Queue) Drain(ctx context.Context) Report {
	if !q.draining.CompareAndSwap(false, true) {
		return Report{}
	}
	defer q.draining.Store(false)

	ctx, span := observability.StartSpan(ctx, observability.SpanQueueDrain)
	defer span.End()

	var report Report
	start := time.Now()

	for {
		// Cancellation is honored between operations, never mid-attempt.
		if err := ctx.Err(); err != nil {
			report.Reason = err
			break
		}

		op, ok := q.head()
		if !ok {
			break
		}

		err := retry.DoFunc(ctx, q.opts.Retry, func(ctx context.Context) error {
			return q.opts.Handler(ctx, op)
		})
		if err != nil {
			// A drain cancelled mid-backoff is not a failed replay round;
			// the attempt counter only tracks rounds the server rejected.
			if errdef.Classify(err) != errdef.KindCanceled {
				q.recordFailure(op.ID)
			}
			report.StoppedAt = op.ID
			report.Reason = err
			q.log.Warn("drain stopped", logger.Fields(
				"id", op.ID.String(),
				"resource", op.Resource,
				logger.FieldError, err.Error(),
			))
			break
		}

		if err := q.removeHead(op.ID); err != nil {
			// The server accepted the operation but the removal did not
			// persist; the next drain re-delivers under the same
			// idempotency key.
			report.StoppedAt = op.ID
			report.Reason = err
			break
		}
		report.Succeeded = append(report.Succeeded, op.ID)
	}

	elapsed := time.Since(start)
	if q.opts.Metrics != nil {
		q.opts.Metrics.RecordDrain(ctx, len(report.Succeeded), elapsed)
	}
	if report.Reason != nil {
		observability.SetSpanError(ctx, report.Reason)
	}
	q.log.Info("drain finished", logger.Fields(
		"replayed", len(report.Succeeded),
		"remaining", q.Len(),
		logger.FieldDuration, elapsed.Milliseconds(),
	))
	return report
}

// StartWatch starts a background goroutine that drains the queue whenever
// the connectivity signal transitions to online. A backlog restored while
// the signal is already online is drained immediately, since no transition
// will arrive for it. The watch stops when ctx is cancelled or Stop is
// called.
func (q *Queue) StartWatch(ctx context.Context) {
	if q.opts.Signal == nil {
		return
	}

	events := q.opts.Signal.Subscribe()
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if q.opts.Signal.Online() && q.Len() > 0 {
			q.log.Info("draining restored backlog")
			q.Drain(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopChan:
				return
			case online := <-events:
				if online && q.Len() > 0 {
					q.log.Info("connectivity restored, draining")
					q.Drain(ctx)
				}
			}
		}
	}()
}

// Stop halts the watch goroutine and waits for it to exit.
// Safe to call multiple times.
func (q *Queue) Stop() {
	q.once.Do(func() {
		close(q.stopChan)
	})
	q.wg.Wait()
}

// head returns a copy of the first queued operation.
func (q *Queue) head() (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ops) == 0 {
		return Operation{}, false
	}
	return q.ops[0], true
}

// removeHead removes the operation with the given ID from the front of
// the queue and persists the removal as part of the same transaction as
// the success acknowledgment.
func (q *Queue) removeHead(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 || q.ops[0].ID != id {
		return nil
	}
	q.ops = q.ops[1:]
	if err := q.opts.Store.Save(q.ops); err != nil {
		return err
	}
	q.notifyDepth(len(q.ops))
	return nil
}

// recordFailure bumps the head operation's attempt counter and persists
// it, so the record reflects how often replay has been tried.
func (q *Queue) recordFailure(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 || q.ops[0].ID != id {
		return
	}
	q.ops[0].Attempts++
	if err := q.opts.Store.Save(q.ops); err != nil {
		q.log.WithError(err).Error("failed to persist attempt count")
	}
}

func (q *Queue) notifyDepth(depth int) {
	if q.opts.Metrics != nil {
		q.opts.Metrics.RecordQueueDepth(context.Background(), int64(depth))
	}
	if q.opts.OnDepthChange != nil {
		q.opts.OnDepthChange(depth)
	}
}
