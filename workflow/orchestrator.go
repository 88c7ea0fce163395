package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow/metrics"
	"github.com/trufnetwork/fdc-attestor/workflow/tracing"
)

// State is a phase of the attestation workflow.
type State string

const (
	StatePreparing     State = "PREPARING"
	StateSubmitting    State = "SUBMITTING"
	StateAwaitingProof State = "AWAITING_PROOF"
	StateComplete      State = "COMPLETE"
	StateFailed        State = "FAILED"
)

// Result is the outcome of a completed workflow.
type Result struct {
	RunID    string
	Prepared PreparedRequest
	Round    RoundInfo
	Proof    ProofRecord
}

// StateObserver is notified of every state transition of a run. from is empty
// for the initial transition into PREPARING.
type StateObserver func(runID string, from, to State)

// OrchestratorConfig holds the per-phase policies and the attestation
// identifiers passed to the preparer.
type OrchestratorConfig struct {
	AttestationKind string
	SourceID        string
	PrepareRetry    RetryPolicy
	Polling         PollingPolicy
}

// Orchestrator sequences PREPARING → SUBMITTING → AWAITING_PROOF → COMPLETE.
// Preparation is retried per PrepareRetry; submission is attempted exactly
// once; proof retrieval is delegated to a ProofRetriever. One Orchestrator may
// serve many concurrent runs.
type Orchestrator struct {
	preparer  Preparer
	submitter Submitter
	retriever *ProofRetriever

	prepareRetry *RetryStrategy
	polling      PollingPolicy
	kind         string
	sourceID     string

	observer StateObserver
	newRunID func() string
	logger   *zap.SugaredLogger
	metrics  metrics.MetricsRecorder
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithStateObserver(fn StateObserver) OrchestratorOption {
	return func(o *Orchestrator) { o.observer = fn }
}

func WithOrchestratorLogger(logger *zap.SugaredLogger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger.Named("workflow") }
}

func WithOrchestratorMetrics(m metrics.MetricsRecorder) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator validates cfg and wires the collaborators.
func NewOrchestrator(preparer Preparer, submitter Submitter, retriever *ProofRetriever, cfg OrchestratorConfig, opts ...OrchestratorOption) (*Orchestrator, error) {
	switch {
	case preparer == nil:
		return nil, &ConfigError{Field: "preparer", Reason: "must not be nil"}
	case submitter == nil:
		return nil, &ConfigError{Field: "submitter", Reason: "must not be nil"}
	case retriever == nil:
		return nil, &ConfigError{Field: "retriever", Reason: "must not be nil"}
	case cfg.AttestationKind == "":
		return nil, &ConfigError{Field: "attestation_kind", Reason: "must not be empty"}
	case cfg.SourceID == "":
		return nil, &ConfigError{Field: "source_id", Reason: "must not be empty"}
	}
	if err := cfg.Polling.Validate(); err != nil {
		return nil, err
	}
	retry, err := NewRetryStrategy(cfg.PrepareRetry)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		preparer:     preparer,
		submitter:    submitter,
		retriever:    retriever,
		prepareRetry: retry,
		polling:      cfg.Polling,
		kind:         cfg.AttestationKind,
		sourceID:     cfg.SourceID,
		newRunID:     func() string { return uuid.NewString() },
		logger:       zap.NewNop().Sugar(),
		metrics:      metrics.NewNoOpMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run tracks the state of a single workflow execution.
type run struct {
	o        *Orchestrator
	id       string
	state    State
	logger   *zap.SugaredLogger
	entered  time.Time
	prepared *PreparedRequest
	round    *RoundInfo
	txHash   *common.Hash
}

func (r *run) enter(ctx context.Context, to State) {
	from := r.state
	if from != "" {
		r.o.metrics.RecordPhaseDuration(ctx, string(from), time.Since(r.entered), string(KindNone))
	}
	r.state = to
	r.entered = time.Now()
	r.logger.Debugw("workflow state change", "from", from, "to", to)
	if r.o.observer != nil {
		r.o.observer(r.id, from, to)
	}
}

func (r *run) fail(ctx context.Context, err error) error {
	phase := r.state
	kind := string(KindOf(err))
	r.o.metrics.RecordPhaseDuration(ctx, string(phase), time.Since(r.entered), kind)
	r.o.metrics.RecordWorkflowFailed(ctx, string(phase), kind)
	r.logger.Errorw("workflow failed", "phase", phase, "error_type", kind, "error", err)

	r.state = StateFailed
	if r.o.observer != nil {
		r.o.observer(r.id, phase, StateFailed)
	}
	return &WorkflowError{RunID: r.id, Phase: phase, Prepared: r.prepared, Round: r.round, TxHash: r.txHash, Err: err}
}

// Run executes one workflow for params. On failure the error is a
// *WorkflowError wrapping the first unrecovered error.
func (o *Orchestrator) Run(ctx context.Context, params RequestParams) (res *Result, err error) {
	r := &run{o: o, id: o.newRunID()}
	r.logger = o.logger.With("run_id", r.id)

	ctx, end := tracing.WorkflowOperation(ctx, tracing.OpWorkflowRun, r.id)
	defer func() { end(err) }()
	started := time.Now()

	r.enter(ctx, StatePreparing)
	if err := params.Validate(); err != nil {
		return nil, r.fail(ctx, err)
	}
	prepared, err := tracing.TracedOperation(ctx, tracing.OpPrepare, r.id, func(ctx context.Context) (*PreparedRequest, error) {
		return o.prepare(ctx, r, params)
	})
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	r.prepared = prepared

	r.enter(ctx, StateSubmitting)
	sub, err := tracing.TracedOperation(ctx, tracing.OpSubmit, r.id, func(ctx context.Context) (*Submission, error) {
		return o.submitter.Submit(ctx, prepared.EncodedRequest)
	})
	if err == nil && sub == nil {
		err = &ProtocolError{Service: "ledger", Reason: "empty submission receipt"}
	}
	if err != nil {
		var broadcast *BroadcastError
		if errors.As(err, &broadcast) {
			r.txHash = &broadcast.TxHash
		}
		return nil, r.fail(ctx, err)
	}
	r.txHash = &sub.TxHash
	r.round = &RoundInfo{
		RoundID:             sub.RoundID,
		SubmissionBlock:     sub.BlockNumber,
		SubmissionTimestamp: sub.BlockTimestamp,
		ExplorerRef:         sub.ExplorerRef,
	}
	r.logger.Infow("request submitted", "round", sub.RoundID, "block", sub.BlockNumber, "tx", sub.TxHash.Hex())

	r.enter(ctx, StateAwaitingProof)
	proof, err := tracing.TracedOperation(ctx, tracing.OpAwaitProof, r.id, func(ctx context.Context) (*ProofRecord, error) {
		return o.retriever.Retrieve(ctx, prepared.EncodedRequest, r.round.RoundID, o.polling)
	}, attribute.Int64("round_id", int64(r.round.RoundID)))
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.enter(ctx, StateComplete)
	o.metrics.RecordWorkflowComplete(ctx, time.Since(started))
	r.logger.Infow("workflow complete", "round", r.round.RoundID, "elapsed", time.Since(started))

	return &Result{
		RunID:    r.id,
		Prepared: *prepared,
		Round:    *r.round,
		Proof:    *proof,
	}, nil
}

func (o *Orchestrator) prepare(ctx context.Context, r *run, params RequestParams) (*PreparedRequest, error) {
	req := PrepareRequest{Params: params, AttestationKind: o.kind, SourceID: o.sourceID}
	return Execute(ctx, o.prepareRetry, func(ctx context.Context) (*PreparedRequest, error) {
		p, err := o.preparer.Prepare(ctx, req)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, &ProtocolError{Service: "preparer", Reason: "empty response"}
		}
		// Rejections usually come without an encoded request.
		if p.Status != StatusValid {
			return nil, &ValidationError{Field: "status", Reason: "preparer returned " + p.Status}
		}
		if len(p.EncodedRequest) == 0 {
			return nil, &ProtocolError{Service: "preparer", Reason: "missing encoded request"}
		}
		return p, nil
	}, func(attempt int, err error) {
		o.metrics.RecordRetry(ctx, string(StatePreparing), attempt)
		r.logger.Warnw("prepare failed, retrying", "attempt", attempt, "error", err)
	})
}

// ResumeProof repeats only the AWAITING_PROOF phase for a request that is
// already on the ledger, typically after a proof Timeout.
func (o *Orchestrator) ResumeProof(ctx context.Context, encodedRequest []byte, round RoundInfo) (*ProofRecord, error) {
	if len(encodedRequest) == 0 {
		return nil, &ValidationError{Field: "encoded_request", Reason: "must not be empty"}
	}
	return o.retriever.Retrieve(ctx, encodedRequest, round.RoundID, o.polling)
}
