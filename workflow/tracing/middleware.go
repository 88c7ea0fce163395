// Package tracing provides OpenTelemetry span helpers for the workflow engine.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// TracedOperation wraps fn in a span tagged with the workflow run id.
// The span is ended even if fn panics; the panic is re-raised.
func TracedOperation[T any](ctx context.Context, op Operation, runID string,
	fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	traceCtx, end := WorkflowOperation(ctx, op, runID, attrs...)
	defer func() {
		if r := recover(); r != nil {
			end(nil)
			panic(r)
		}
	}()

	result, err := fn(traceCtx)
	end(err)
	return result, err
}

// TracedRoundOperation is TracedOperation for round-scoped work.
func TracedRoundOperation[T any](ctx context.Context, op Operation, roundID uint64,
	fn func(context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	traceCtx, end := RoundOperation(ctx, op, roundID, attrs...)
	defer func() {
		if r := recover(); r != nil {
			end(nil)
			panic(r)
		}
	}()

	result, err := fn(traceCtx)
	end(err)
	return result, err
}
