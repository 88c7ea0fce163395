package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Operation represents a traceable operation with its name and common attributes
type Operation string

const (
	// Workflow phases
	OpWorkflowRun    Operation = "workflow.run"
	OpPrepare        Operation = "workflow.prepare"
	OpSubmit         Operation = "workflow.submit"
	OpAwaitProof     Operation = "workflow.await_proof"
	OpFinalization   Operation = "workflow.finalization_wait"
	OpProofPoll      Operation = "workflow.proof_poll"
	OpCacheLookup    Operation = "cache.lookup"
	OpSchedulerJob   Operation = "scheduler.job"
	OpBatchExecution Operation = "runner.batch"
)

// OperationInfo provides metadata about each operation
type OperationInfo struct {
	Name        Operation
	Description string
	Required    []string // Required attribute keys
}

// Operations is the registry of every traced operation.
var Operations = map[Operation]OperationInfo{
	OpWorkflowRun: {
		Name:        OpWorkflowRun,
		Description: "Run one attestation workflow end to end",
		Required:    []string{"run_id"},
	},
	OpPrepare: {
		Name:        OpPrepare,
		Description: "Encode the request through the preparer service",
		Required:    []string{"run_id"},
	},
	OpSubmit: {
		Name:        OpSubmit,
		Description: "Submit the encoded request to the ledger",
		Required:    []string{"run_id"},
	},
	OpAwaitProof: {
		Name:        OpAwaitProof,
		Description: "Wait for finalization and fetch the proof",
		Required:    []string{"run_id", "round_id"},
	},
	OpFinalization: {
		Name:        OpFinalization,
		Description: "Poll the finalization oracle for a voting round",
		Required:    []string{"round_id"},
	},
	OpProofPoll: {
		Name:        OpProofPoll,
		Description: "Poll the proof-distribution service",
		Required:    []string{"round_id"},
	},
	OpCacheLookup: {
		Name:        OpCacheLookup,
		Description: "Look up a proof in the in-memory cache",
		Required:    []string{"round_id"},
	},
	OpSchedulerJob: {
		Name:        OpSchedulerJob,
		Description: "Execute a scheduled attestation job",
		Required:    []string{"job"},
	},
	OpBatchExecution: {
		Name:        OpBatchExecution,
		Description: "Run a batch of workflows concurrently",
		Required:    []string{"count"},
	},
}

// WorkflowOperation creates a traced operation tagged with the workflow run id.
func WorkflowOperation(ctx context.Context, op Operation, runID string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	baseAttrs := []attribute.KeyValue{
		attribute.String("run_id", runID),
	}
	return TraceOp(ctx, string(op), append(baseAttrs, attrs...)...)
}

// RoundOperation creates a traced operation tagged with a voting round id.
func RoundOperation(ctx context.Context, op Operation, roundID uint64, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	baseAttrs := []attribute.KeyValue{
		attribute.Int64("round_id", int64(roundID)),
	}
	return TraceOp(ctx, string(op), append(baseAttrs, attrs...)...)
}
