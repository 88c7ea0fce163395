package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trufnetwork/fdc-attestor/workflow/tracing"
)

// DefaultConcurrency bounds how many workflows a Runner drives at once.
const DefaultConcurrency = 4

// Outcome is the result of one request in a batch. Exactly one of Result and
// Err is set.
type Outcome struct {
	Index    int
	Result   *Result
	Err      error
	Duration time.Duration
}

// Runner executes independent workflows concurrently. Workflows share only the
// orchestrator's proof cache; one failing request never cancels its siblings.
type Runner struct {
	orchestrator *Orchestrator
	limit        int
	logger       *zap.SugaredLogger
}

func NewRunner(o *Orchestrator, limit int, logger *zap.SugaredLogger) *Runner {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{orchestrator: o, limit: limit, logger: logger.Named("runner")}
}

// RunAll runs one workflow per params and returns outcomes in input order.
func (r *Runner) RunAll(ctx context.Context, params []RequestParams) []Outcome {
	ctx, end := tracing.TraceOp(ctx, string(tracing.OpBatchExecution), attribute.Int("count", len(params)))
	defer end(nil)

	outcomes := make([]Outcome, len(params))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)

	for i, p := range params {
		i, p := i, p
		g.Go(func() error {
			outcomes[i] = r.runOne(ctx, i, p)
			// Errors stay per item so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	failed := lo.CountBy(outcomes, func(o Outcome) bool { return o.Err != nil })
	r.logger.Infow("batch completed", "total", len(outcomes), "failed", failed)
	return outcomes
}

func (r *Runner) runOne(ctx context.Context, i int, p RequestParams) (out Outcome) {
	started := time.Now()
	out.Index = i
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorw("panic in workflow", "index", i, "panic", rec, "stack", string(debug.Stack()))
			out.Result = nil
			out.Err = fmt.Errorf("workflow %d panicked: %v", i, rec)
		}
		out.Duration = time.Since(started)
	}()

	out.Result, out.Err = r.orchestrator.Run(ctx, p)
	return out
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	return lo.Filter(outcomes, func(o Outcome, _ int) bool { return o.Err != nil })
}
