package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/finvue/resilience/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds metric instruments for the resilience layer.
type Metrics struct {
	callTotal     metric.Int64Counter
	callDuration  metric.Float64Histogram
	denyTotal     metric.Int64Counter
	retryTotal    metric.Int64Counter
	dedupeTotal   metric.Int64Counter
	queueDepth    metric.Int64UpDownCounter
	drainDuration metric.Float64Histogram

	lastDepth atomic.Int64
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	callTotal, err := meter.Int64Counter("resilience.call.total",
		metric.WithDescription("Total calls issued through the resilient client"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating call.total counter: %w", err)
	}

	callDuration, err := meter.Float64Histogram("resilience.call.duration",
		metric.WithDescription("Duration of resilient calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating call.duration histogram: %w", err)
	}

	denyTotal, err := meter.Int64Counter("resilience.ratelimit.denied",
		metric.WithDescription("Requests denied by the local rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ratelimit.denied counter: %w", err)
	}

	retryTotal, err := meter.Int64Counter("resilience.retry.attempts",
		metric.WithDescription("Retry attempts by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating retry.attempts counter: %w", err)
	}

	dedupeTotal, err := meter.Int64Counter("resilience.dedupe.total",
		metric.WithDescription("Deduplicated read lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dedupe.total counter: %w", err)
	}

	queueDepth, err := meter.Int64UpDownCounter("resilience.queue.depth",
		metric.WithDescription("Pending operations in the offline queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue.depth gauge: %w", err)
	}

	drainDuration, err := meter.Float64Histogram("resilience.queue.drain.duration",
		metric.WithDescription("Duration of offline queue drains in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drain.duration histogram: %w", err)
	}

	return &Metrics{
		callTotal:     callTotal,
		callDuration:  callDuration,
		denyTotal:     denyTotal,
		retryTotal:    retryTotal,
		dedupeTotal:   dedupeTotal,
		queueDepth:    queueDepth,
		drainDuration: drainDuration,
	}, nil
}

// RecordCall records a completed resilient call.
func (m *Metrics) RecordCall(ctx context.Context, identity, status string, duration time.Duration) {
	m.callTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("identity", identity),
		attribute.String("status", status),
	))
	m.callDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordDeny records a local rate-limit denial.
func (m *Metrics) RecordDeny(ctx context.Context, tier string) {
	m.denyTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
	))
}

// RecordRetry records a single retry attempt.
func (m *Metrics) RecordRetry(ctx context.Context, kind string) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordDedupe records a dedup registry lookup outcome ("hit" or "miss").
func (m *Metrics) RecordDedupe(ctx context.Context, outcome string) {
	m.dedupeTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// RecordQueueDepth moves the queue depth gauge to the given absolute
// depth. Depth change hooks report absolute queue lengths, so the delta
// against the previously recorded depth is applied to the up/down counter.
func (m *Metrics) RecordQueueDepth(ctx context.Context, depth int64) {
	prev := m.lastDepth.Swap(depth)
	m.queueDepth.Add(ctx, depth-prev)
}

// RecordDrain records a completed drain.
func (m *Metrics) RecordDrain(ctx context.Context, replayed int, duration time.Duration) {
	m.drainDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Int("replayed", replayed),
	))
}
