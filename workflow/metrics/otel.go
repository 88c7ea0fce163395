package metrics

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// OTELMetrics implements MetricsRecorder using OpenTelemetry
type OTELMetrics struct {
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheEvictions metric.Int64Counter

	retries metric.Int64Counter
	polls   metric.Int64Counter

	phaseDuration    metric.Float64Histogram
	workflowDuration metric.Float64Histogram
	workflowFailures metric.Int64Counter

	breakerTransitions metric.Int64Counter

	logger *zap.SugaredLogger
}

// NewOTELMetrics creates a new OpenTelemetry metrics recorder
func NewOTELMetrics(meter metric.Meter, logger *zap.SugaredLogger) (*OTELMetrics, error) {
	m := &OTELMetrics{logger: logger}

	var err error

	m.cacheHits, err = meter.Int64Counter("fdc_attestor.cache.hits",
		metric.WithDescription("Number of proof cache hits"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.cacheMisses, err = meter.Int64Counter("fdc_attestor.cache.misses",
		metric.WithDescription("Number of proof cache misses"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.cacheEvictions, err = meter.Int64Counter("fdc_attestor.cache.evictions",
		metric.WithDescription("Number of expired proof cache entries evicted on read"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.retries, err = meter.Int64Counter("fdc_attestor.retries",
		metric.WithDescription("Number of retried attempts per phase"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.polls, err = meter.Int64Counter("fdc_attestor.polls",
		metric.WithDescription("Number of polling checks per phase"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.phaseDuration, err = meter.Float64Histogram("fdc_attestor.phase.duration",
		metric.WithDescription("Time spent in each workflow phase"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.workflowDuration, err = meter.Float64Histogram("fdc_attestor.workflow.duration",
		metric.WithDescription("End-to-end duration of completed workflows"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.workflowFailures, err = meter.Int64Counter("fdc_attestor.workflow.failures",
		metric.WithDescription("Number of failed workflows"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	m.breakerTransitions, err = meter.Int64Counter("fdc_attestor.circuit_breaker.transitions",
		metric.WithDescription("Number of circuit breaker state changes"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *OTELMetrics) RecordCacheHit(ctx context.Context) {
	m.cacheHits.Add(ctx, 1)
}

func (m *OTELMetrics) RecordCacheMiss(ctx context.Context) {
	m.cacheMisses.Add(ctx, 1)
}

func (m *OTELMetrics) RecordCacheEviction(ctx context.Context) {
	m.cacheEvictions.Add(ctx, 1)
}

func (m *OTELMetrics) RecordRetry(ctx context.Context, phase string, attempt int) {
	m.retries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.Int("attempt", attempt),
		))
}

func (m *OTELMetrics) RecordPoll(ctx context.Context, phase string, satisfied bool) {
	m.polls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.Bool("satisfied", satisfied),
		))
}

func (m *OTELMetrics) RecordPhaseDuration(ctx context.Context, phase string, duration time.Duration, errKind string) {
	m.phaseDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("error_type", errKind),
		))
}

func (m *OTELMetrics) RecordWorkflowComplete(ctx context.Context, duration time.Duration) {
	m.workflowDuration.Record(ctx, duration.Seconds())
}

func (m *OTELMetrics) RecordWorkflowFailed(ctx context.Context, phase string, errKind string) {
	m.workflowFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("error_type", errKind),
		))
}

func (m *OTELMetrics) RecordCircuitBreakerStateChange(ctx context.Context, service string, from, to gobreaker.State) {
	m.breakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("from", from.String()),
			attribute.String("to", to.String()),
		))
}
