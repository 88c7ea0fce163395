// Package metrics provides observability for the attestation workflow engine.
// It uses a plugin pattern to ensure zero overhead when OpenTelemetry is not available.
package metrics

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// MeterName is the instrumentation scope used for every engine instrument.
const MeterName = "github.com/trufnetwork/fdc-attestor/workflow"

// MetricsRecorder defines the interface for recording engine metrics.
// This allows for pluggable implementations - either real OTEL metrics or no-op.
type MetricsRecorder interface {
	// Proof cache effectiveness
	RecordCacheHit(ctx context.Context)
	RecordCacheMiss(ctx context.Context)
	RecordCacheEviction(ctx context.Context)

	// Retry and polling behaviour
	RecordRetry(ctx context.Context, phase string, attempt int)
	RecordPoll(ctx context.Context, phase string, satisfied bool)

	// Workflow phases and outcomes
	RecordPhaseDuration(ctx context.Context, phase string, duration time.Duration, errKind string)
	RecordWorkflowComplete(ctx context.Context, duration time.Duration)
	RecordWorkflowFailed(ctx context.Context, phase string, errKind string)

	// Proof service circuit breaker
	RecordCircuitBreakerStateChange(ctx context.Context, service string, from, to gobreaker.State)
}

// NewMetricsRecorder creates a metrics recorder instance.
// It automatically detects if OpenTelemetry is available and returns
// either a real OTEL implementation or a no-op implementation.
func NewMetricsRecorder(logger *zap.SugaredLogger) MetricsRecorder {
	meter := otel.GetMeterProvider().Meter(MeterName)

	// Try to create a test metric to verify OTEL is functional
	if _, err := meter.Int64Counter("fdc_attestor.test"); err != nil {
		logger.Debug("OpenTelemetry not available, metrics disabled")
		return NewNoOpMetrics()
	}

	otelMetrics, err := NewOTELMetrics(meter, logger)
	if err != nil {
		logger.Warnw("failed to initialize OTEL metrics, falling back to no-op", "error", err)
		return NewNoOpMetrics()
	}

	logger.Debug("OpenTelemetry metrics initialized")
	return otelMetrics
}
