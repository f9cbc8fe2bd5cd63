package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/finvue/resilience/dedupe"
	"github.com/finvue/resilience/errdef"
	"github.com/finvue/resilience/logger"
	"github.com/finvue/resilience/observability"
	"github.com/finvue/resilience/offline"
	"github.com/finvue/resilience/ratelimit"
	"github.com/finvue/resilience/retry"
)

// Request describes one call through the resilience layer.
type Request struct {
	// Identity is the caller identity the rate limiter keys on.
	Identity string
	// Tier is the caller's rate-limit tier name.
	Tier string
	// DedupeKey groups logically identical in-flight reads. Empty skips
	// deduplication. Ignored for mutations.
	DedupeKey string
	// Mutation marks the call as side-effecting. Mutations bypass
	// deduplication and are queued when the backend is unreachable.
	Mutation bool
	// Resource names the resource kind a mutation targets.
	Resource string
	// Kind is the mutation type. Required when Mutation is set.
	Kind offline.Kind
	// Payload is the mutation body captured on enqueue.
	Payload json.RawMessage
	// Policy overrides the client's default retry policy.
	Policy *retry.Policy
	// Op is the unit of work.
	Op func(ctx context.Context) (any, error)
}

// Result is the outcome of a call.
type Result struct {
	// Value is the operation's return value. Nil when Queued.
	Value any
	// Queued reports that the mutation was captured for later delivery
	// instead of executed. The call counts as accepted, pending sync.
	Queued bool
	// OperationID is the queued operation's idempotency key. Zero unless
	// Queued.
	OperationID uuid.UUID
}

// Options configures a Client.
type Options struct {
	// Limiter is the admission limiter. Defaults to a limiter over the
	// default tier table, owned and swept by the client.
	Limiter *ratelimit.Limiter
	// Queue captures mutations that fail for lack of connectivity.
	// Nil disables offline capture; such failures surface to the caller.
	Queue *offline.Queue
	// Policy is the default retry policy. Zero value means retry defaults.
	Policy retry.Policy
	// DedupeMaxAge bounds how long an unsettled read flight may be joined.
	DedupeMaxAge time.Duration
	// Logger defaults to the global logger.
	Logger *logger.Logger
	// Metrics receives call, deny, retry, dedupe and queue instruments.
	// Nil disables recording.
	Metrics *observability.Metrics
}

// Client is the façade an application call site uses.
type Client struct {
	opts       Options
	limiter    *ratelimit.Limiter
	ownLimiter bool
	group      *dedupe.Group[any]
	log        *logger.Logger
}

// New creates a client. When no limiter is supplied the client creates
// one over the default tiers and runs its eviction sweep until Close.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobalLogger()
	}

	c := &Client{
		opts:    opts,
		limiter: opts.Limiter,
		group:   &dedupe.Group[any]{MaxAge: opts.DedupeMaxAge},
		log:     opts.Logger.WithComponent("resilient-client"),
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewLimiter(ratelimit.Config{Logger: opts.Logger})
		c.limiter.StartSweep(context.Background())
		c.ownLimiter = true
	}
	return c
}

// Call executes req through the full sequence: admission check, read
// deduplication, retry. A denial short-circuits with *errdef.RateLimitError.
// A mutation whose retries exhaust on a connectivity failure is enqueued
// and reported as Result{Queued: true} with a nil error.
func (c *Client) Call(ctx context.Context, req Request) (Result, error) {
	if req.Op == nil {
		return Result{}, fmt.Errorf("client: request op is required")
	}
	// Offline capture needs well-formed metadata. Reject it before tokens
	// are spent and retries run, not when the enqueue finally fails.
	if req.Mutation && c.opts.Queue != nil {
		if !req.Kind.Valid() {
			return Result{}, fmt.Errorf("client: mutation request has unknown kind %q", req.Kind)
		}
		if req.Resource == "" {
			return Result{}, fmt.Errorf("client: mutation request needs a resource")
		}
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanCall)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrIdentity, req.Identity)
	observability.SetSpanAttribute(ctx, observability.AttrTier, req.Tier)

	admit := c.limiter.Check(req.Identity, req.Tier)
	if !admit.Allowed {
		if c.opts.Metrics != nil {
			c.opts.Metrics.RecordDeny(ctx, req.Tier)
			c.opts.Metrics.RecordCall(ctx, req.Identity, "denied", time.Since(start))
		}
		err := &errdef.RateLimitError{ResetIn: admit.ResetIn, Limit: admit.Limit}
		observability.SetSpanError(ctx, err)
		return Result{}, err
	}

	value, err := c.execute(ctx, req)

	if err != nil && req.Mutation && errdef.IsConnectivity(err) && c.opts.Queue != nil {
		return c.capture(ctx, req, err, start)
	}

	status := "ok"
	if err != nil {
		status = "error"
		observability.SetSpanError(ctx, err)
	}
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordCall(ctx, req.Identity, status, time.Since(start))
	}
	return Result{Value: value}, err
}

// execute runs the retry loop, routed through the dedup group for keyed
// reads. The dedupe outcome is a miss when this call's factory ran.
func (c *Client) execute(ctx context.Context, req Request) (any, error) {
	policy := c.policyFor(req)

	run := func(ctx context.Context) (any, error) {
		return retry.Do(ctx, policy, req.Op)
	}

	if req.DedupeKey == "" || req.Mutation {
		return run(ctx)
	}

	var ran atomic.Bool
	value, err := c.group.Do(ctx, req.DedupeKey, func(ctx context.Context) (any, error) {
		ran.Store(true)
		return run(ctx)
	})
	if c.opts.Metrics != nil {
		outcome := "hit"
		if ran.Load() {
			outcome = "miss"
		}
		c.opts.Metrics.RecordDedupe(ctx, outcome)
	}
	return value, err
}

// capture enqueues a mutation that could not reach the backend and turns
// the failure into an accepted, pending-sync result.
func (c *Client) capture(ctx context.Context, req Request, cause error, start time.Time) (Result, error) {
	op := offline.Operation{
		ID:       uuid.New(),
		Kind:     req.Kind,
		Resource: req.Resource,
		Payload:  req.Payload,
	}
	if err := c.opts.Queue.Enqueue(op); err != nil {
		c.log.WithError(err).Error("failed to queue mutation after connectivity failure")
		return Result{}, fmt.Errorf("client: queueing mutation after %v: %w", cause, err)
	}

	c.log.Info("mutation queued for later delivery", logger.Fields(
		"id", op.ID.String(),
		"resource", op.Resource,
		logger.FieldError, cause.Error(),
	))
	observability.SetSpanAttribute(ctx, observability.AttrQueued, true)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordCall(ctx, req.Identity, "queued", time.Since(start))
	}
	return Result{Queued: true, OperationID: op.ID}, nil
}

func (c *Client) policyFor(req Request) retry.Policy {
	policy := c.opts.Policy
	if req.Policy != nil {
		policy = *req.Policy
	}
	if c.opts.Metrics == nil {
		return policy
	}

	wrapped := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.opts.Metrics.RecordRetry(context.Background(), string(errdef.Classify(err)))
		if wrapped != nil {
			wrapped(attempt, err, delay)
		}
	}
	return policy
}

// Forget drops the in-flight read registered under key, if any.
func (c *Client) Forget(key string) { c.group.Forget(key) }

// Close stops the limiter sweep the client started. A caller-supplied
// limiter keeps its own lifecycle.
func (c *Client) Close() {
	if c.ownLimiter {
		c.limiter.Stop()
	}
}
