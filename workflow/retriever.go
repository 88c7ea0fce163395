package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow/metrics"
	"github.com/trufnetwork/fdc-attestor/workflow/tracing"
)

// DefaultSettleDelay is the pause between round finalization and the first
// proof request; proofs are generated some time after the round settles.
const DefaultSettleDelay = 30 * time.Second

// ProofRetriever obtains the proof for a submitted request: cache first, then
// finalization, then polling of the proof-distribution service.
type ProofRetriever struct {
	waiter      *RoundFinalizationWaiter
	proofs      ProofService
	cache       *ProofCache // nil disables caching
	settleDelay time.Duration
	logger      *zap.SugaredLogger
	metrics     metrics.MetricsRecorder
	clock       clock
}

// RetrieverOption customises a ProofRetriever.
type RetrieverOption func(*ProofRetriever)

// WithCache enables proof caching. A nil cache disables it.
func WithCache(cache *ProofCache) RetrieverOption {
	return func(r *ProofRetriever) { r.cache = cache }
}

func WithSettleDelay(d time.Duration) RetrieverOption {
	return func(r *ProofRetriever) {
		if d >= 0 {
			r.settleDelay = d
		}
	}
}

func WithRetrieverLogger(logger *zap.SugaredLogger) RetrieverOption {
	return func(r *ProofRetriever) { r.logger = logger.Named("retriever") }
}

func WithRetrieverMetrics(m metrics.MetricsRecorder) RetrieverOption {
	return func(r *ProofRetriever) { r.metrics = m }
}

func withRetrieverClock(c clock) RetrieverOption {
	return func(r *ProofRetriever) { r.clock = c }
}

func NewProofRetriever(waiter *RoundFinalizationWaiter, proofs ProofService, opts ...RetrieverOption) *ProofRetriever {
	r := &ProofRetriever{
		waiter:      waiter,
		proofs:      proofs,
		settleDelay: DefaultSettleDelay,
		logger:      zap.NewNop().Sugar(),
		metrics:     metrics.NewNoOpMetrics(),
		clock:       realClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the cache in use, or nil.
func (r *ProofRetriever) Cache() *ProofCache {
	return r.cache
}

// Retrieve returns the proof for encodedRequest in roundID.
//
// A finalization Timeout is returned unchanged. The proof polling deadline is
// policy.MaxWaitTime measured from the start of Retrieve; exceeding it yields
// a *Timeout with phase "proof".
func (r *ProofRetriever) Retrieve(ctx context.Context, encodedRequest []byte, roundID uint64, policy PollingPolicy) (*ProofRecord, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	start := r.clock.now()
	fp := NewFingerprint(encodedRequest, roundID)

	if r.cache != nil {
		if rec, ok := r.cache.Get(fp); ok {
			r.logger.Debugw("proof served from cache", "round", roundID)
			return &rec, nil
		}
	}

	if err := r.waiter.Wait(ctx, roundID, policy); err != nil {
		return nil, err
	}

	if r.settleDelay > 0 {
		r.logger.Debugw("round finalized, waiting for proof generation", "round", roundID, "delay", r.settleDelay)
		if err := r.clock.sleep(ctx, r.settleDelay); err != nil {
			return nil, err
		}
	}

	rec, err := tracing.TracedRoundOperation(ctx, tracing.OpProofPoll, roundID, func(ctx context.Context) (*ProofRecord, error) {
		return r.pollProof(ctx, encodedRequest, roundID, policy, start)
	})
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(fp, *rec)
	}
	return rec, nil
}

func (r *ProofRetriever) pollProof(ctx context.Context, encodedRequest []byte, roundID uint64, policy PollingPolicy, start time.Time) (*ProofRecord, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.proofs.FetchProof(ctx, roundID, encodedRequest)
		if err == nil && rec != nil && len(rec.ResponseBytes) > 0 {
			r.metrics.RecordPoll(ctx, PhaseProof, true)
			r.logger.Infow("proof retrieved", "round", roundID, "attempts", attempt)
			return rec, nil
		}
		if err == nil {
			err = &ProtocolError{Service: "proof", Reason: "empty proof response"}
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		lastErr = err
		r.metrics.RecordPoll(ctx, PhaseProof, false)
		r.logger.Debugw("proof not yet available", "round", roundID, "attempt", attempt, "error", err)

		elapsed := r.clock.now().Sub(start)
		if elapsed >= policy.MaxWaitTime {
			r.logger.Warnw("proof retrieval timed out", "round", roundID, "attempts", attempt, "limit", policy.MaxWaitTime)
			return nil, &Timeout{Phase: PhaseProof, Limit: policy.MaxWaitTime, LastErr: lastErr}
		}
		if err := r.clock.sleep(ctx, min(policy.CheckInterval, policy.MaxWaitTime-elapsed)); err != nil {
			return nil, err
		}
	}
}
