package workflow

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow/metrics"
	"github.com/trufnetwork/fdc-attestor/workflow/tracing"
)

const (
	// DefaultMaxCheckInterval caps the adaptive finalization poll interval.
	DefaultMaxCheckInterval = 60 * time.Second

	// After this many consecutive non-finalized checks the interval grows.
	adaptAfterChecks = 5
	adaptFactor      = 1.5
)

// WaitState is the state of a RoundFinalizationWaiter run.
type WaitState string

const (
	WaitWaiting   WaitState = "WAITING"
	WaitFinalized WaitState = "FINALIZED"
	WaitTimeout   WaitState = "TIMEOUT"
)

// Progress is reported to the progress callback after every oracle check.
type Progress struct {
	RoundID  uint64
	State    WaitState
	Checks   int
	Elapsed  time.Duration
	Interval time.Duration
}

// ProgressFunc observes a waiter. It must return promptly; it cannot change
// the loop's course and a panic inside it is recovered and logged.
type ProgressFunc func(Progress)

// RoundFinalizationWaiter polls a FinalizationOracle until a voting round is
// finalized or the polling deadline elapses. It holds no per-run state.
type RoundFinalizationWaiter struct {
	oracle      FinalizationOracle
	protocolID  uint64
	maxInterval time.Duration
	progress    ProgressFunc
	logger      *zap.SugaredLogger
	metrics     metrics.MetricsRecorder
	clock       clock
}

// WaiterOption customises a RoundFinalizationWaiter.
type WaiterOption func(*RoundFinalizationWaiter)

func WithProgress(fn ProgressFunc) WaiterOption {
	return func(w *RoundFinalizationWaiter) { w.progress = fn }
}

func WithMaxCheckInterval(d time.Duration) WaiterOption {
	return func(w *RoundFinalizationWaiter) {
		if d > 0 {
			w.maxInterval = d
		}
	}
}

func WithWaiterLogger(logger *zap.SugaredLogger) WaiterOption {
	return func(w *RoundFinalizationWaiter) { w.logger = logger.Named("waiter") }
}

func WithWaiterMetrics(m metrics.MetricsRecorder) WaiterOption {
	return func(w *RoundFinalizationWaiter) { w.metrics = m }
}

func withWaiterClock(c clock) WaiterOption {
	return func(w *RoundFinalizationWaiter) { w.clock = c }
}

// NewRoundFinalizationWaiter builds a waiter querying oracle for protocolID.
func NewRoundFinalizationWaiter(oracle FinalizationOracle, protocolID uint64, opts ...WaiterOption) *RoundFinalizationWaiter {
	w := &RoundFinalizationWaiter{
		oracle:      oracle,
		protocolID:  protocolID,
		maxInterval: DefaultMaxCheckInterval,
		logger:      zap.NewNop().Sugar(),
		metrics:     metrics.NewNoOpMetrics(),
		clock:       realClock(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait blocks until roundID is finalized (nil), the deadline elapses
// (*Timeout with phase "finalization") or ctx is done (ctx.Err()).
//
// The first check happens immediately. Once five consecutive checks have
// missed, each further miss stretches the interval by 1.5x up to the cap.
func (w *RoundFinalizationWaiter) Wait(ctx context.Context, roundID uint64, policy PollingPolicy) (err error) {
	if err := policy.Validate(); err != nil {
		return err
	}

	ctx, end := tracing.RoundOperation(ctx, tracing.OpFinalization, roundID)
	defer func() { end(err) }()

	start := w.clock.now()
	interval := min(policy.CheckInterval, w.maxInterval)
	checks := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		finalized, qerr := w.oracle.IsFinalized(ctx, w.protocolID, roundID)
		checks++
		if qerr != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			w.logger.Debugw("finalization check failed, treating as not finalized",
				"round", roundID, "check", checks, "error", qerr)
			finalized = false
		}
		w.metrics.RecordPoll(ctx, PhaseFinalization, finalized)

		elapsed := w.clock.now().Sub(start)
		if finalized {
			w.report(Progress{RoundID: roundID, State: WaitFinalized, Checks: checks, Elapsed: elapsed, Interval: interval})
			w.logger.Infow("round finalized", "round", roundID, "checks", checks, "elapsed", elapsed)
			return nil
		}

		if elapsed >= policy.MaxWaitTime {
			w.report(Progress{RoundID: roundID, State: WaitTimeout, Checks: checks, Elapsed: elapsed, Interval: interval})
			w.logger.Warnw("round finalization timed out", "round", roundID, "checks", checks, "limit", policy.MaxWaitTime)
			return &Timeout{Phase: PhaseFinalization, Limit: policy.MaxWaitTime, LastErr: qerr}
		}
		w.report(Progress{RoundID: roundID, State: WaitWaiting, Checks: checks, Elapsed: elapsed, Interval: interval})

		wait := min(interval, policy.MaxWaitTime-elapsed)
		if err := w.clock.sleep(ctx, wait); err != nil {
			return err
		}

		if checks >= adaptAfterChecks {
			interval = nextInterval(interval, w.maxInterval)
		}
	}
}

func (w *RoundFinalizationWaiter) report(p Progress) {
	if w.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorw("panic in finalization progress callback", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	w.progress(p)
}

func nextInterval(current, limit time.Duration) time.Duration {
	next := time.Duration(float64(current) * adaptFactor)
	if next > limit {
		return limit
	}
	return next
}
