// Package scheduler runs attestation workflows on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow"
	"github.com/trufnetwork/fdc-attestor/workflow/tracing"
)

// stopTimeout bounds how long Stop waits for running jobs.
const stopTimeout = 30 * time.Second

// WorkflowRunner runs one attestation. *workflow.Orchestrator satisfies it.
type WorkflowRunner interface {
	Run(ctx context.Context, params workflow.RequestParams) (*workflow.Result, error)
}

// ResultFunc observes the outcome of every scheduled run.
type ResultFunc func(job string, res *workflow.Result, err error)

// Scheduler registers one cron entry per job. A job whose previous run is
// still in flight skips its turn.
type Scheduler struct {
	runner   WorkflowRunner
	logger   *zap.SugaredLogger
	onResult ResultFunc

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running map[string]*atomic.Bool
	jobs    map[string]Job
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customises a Scheduler.
type Option func(*Scheduler)

func WithResultFunc(fn ResultFunc) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

func New(runner WorkflowRunner, logger *zap.SugaredLogger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Scheduler{
		runner:  runner,
		logger:  logger.Named("scheduler"),
		entries: make(map[string]cron.EntryID),
		running: make(map[string]*atomic.Bool),
		jobs:    make(map[string]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithParser(cronParser), cron.WithLogger(cronLogger{s.logger}))
	return s
}

// Start registers jobs and starts the cron loop. Runs are cancelled when ctx
// is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context, jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infow("starting scheduler", "jobs", len(jobs))
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.replaceLocked(jobs); err != nil {
		s.cancel()
		return err
	}
	s.cron.Start()
	s.logger.Infow("scheduler started", "jobs", len(s.entries))
	return nil
}

// Reload replaces the registered jobs. Runs already in flight continue. A job
// list with duplicate names is rejected and the current jobs are kept.
func (s *Scheduler) Reload(jobs []Job) error {
	if dups := lo.FindDuplicatesBy(jobs, func(j Job) string { return j.Name }); len(dups) > 0 {
		return fmt.Errorf("duplicate job name %q", dups[0].Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replaceLocked(jobs); err != nil {
		return err
	}
	s.logger.Infow("jobs reloaded", "jobs", len(s.entries))
	return nil
}

// Stop halts the cron loop, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	cronCtx := s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-cronCtx.Done():
		s.logger.Info("all scheduled jobs completed")
	case <-time.After(stopTimeout):
		s.logger.Warn("timeout waiting for jobs to complete")
	}
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Trigger runs the named job immediately in the caller's goroutine, subject
// to the same overlap rule as scheduled runs. It reports whether the job ran.
func (s *Scheduler) Trigger(name string) (bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(job), nil
}

// replaceLocked registers jobs alongside the current entries and only then
// removes the old ones. On error the new entries are removed and the current
// jobs stay registered.
func (s *Scheduler) replaceLocked(jobs []Job) error {
	entries := make(map[string]cron.EntryID, len(jobs))
	registered := make(map[string]Job, len(jobs))

	for _, job := range jobs {
		if _, exists := entries[job.Name]; exists {
			s.removeEntries(entries)
			return fmt.Errorf("duplicate job name %q", job.Name)
		}
		job := job
		id, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(job) })
		if err != nil {
			s.removeEntries(entries)
			return fmt.Errorf("add cron job %s: %w", job.Name, err)
		}
		entries[job.Name] = id
		registered[job.Name] = job
	}

	s.removeEntries(s.entries)
	s.entries = entries
	s.jobs = registered
	for name, job := range registered {
		if _, ok := s.running[name]; !ok {
			s.running[name] = &atomic.Bool{}
		}
		s.logger.Infow("registered cron job", "job", name, "schedule", job.Schedule)
	}
	return nil
}

func (s *Scheduler) removeEntries(entries map[string]cron.EntryID) {
	for _, id := range entries {
		s.cron.Remove(id)
	}
}

func (s *Scheduler) runJob(job Job) bool {
	s.mu.Lock()
	flag := s.running[job.Name]
	parent := s.ctx
	s.mu.Unlock()

	if parent == nil || parent.Err() != nil {
		return false
	}
	if !flag.CompareAndSwap(false, true) {
		s.logger.Warnw("previous run still in progress, skipping", "job", job.Name)
		return false
	}
	defer flag.Store(false)

	// Add panic recovery to keep the scheduler alive
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("panic in scheduled job",
				"job", job.Name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, job.Timeout)
	defer cancel()
	ctx, end := tracing.TraceOp(ctx, string(tracing.OpSchedulerJob), attribute.String("job", job.Name))

	started := time.Now()
	res, err := s.runner.Run(ctx, job.Params)
	end(err)

	if err != nil {
		s.logger.Errorw("scheduled job failed", "job", job.Name, "error_type", workflow.KindOf(err), "error", err)
	} else {
		s.logger.Infow("scheduled job completed",
			"job", job.Name,
			"round", res.Round.RoundID,
			"duration", time.Since(started))
	}
	if s.onResult != nil {
		s.onResult(job.Name, res, err)
	}
	return true
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
