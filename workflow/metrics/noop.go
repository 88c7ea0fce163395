package metrics

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// NoOpMetrics is a no-op implementation of MetricsRecorder.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics recorder
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordCacheHit(ctx context.Context) {}

func (n *NoOpMetrics) RecordCacheMiss(ctx context.Context) {}

func (n *NoOpMetrics) RecordCacheEviction(ctx context.Context) {}

func (n *NoOpMetrics) RecordRetry(ctx context.Context, phase string, attempt int) {}

func (n *NoOpMetrics) RecordPoll(ctx context.Context, phase string, satisfied bool) {}

func (n *NoOpMetrics) RecordPhaseDuration(ctx context.Context, phase string, duration time.Duration, errKind string) {
}

func (n *NoOpMetrics) RecordWorkflowComplete(ctx context.Context, duration time.Duration) {}

func (n *NoOpMetrics) RecordWorkflowFailed(ctx context.Context, phase string, errKind string) {}

func (n *NoOpMetrics) RecordCircuitBreakerStateChange(ctx context.Context, service string, from, to gobreaker.State) {
}
