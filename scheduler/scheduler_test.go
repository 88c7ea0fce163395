package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

type fakeRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	err     error
	panics  bool
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, params workflow.RequestParams) (*workflow.Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.panics {
		panic("runner bug")
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.Result{Round: workflow.RoundInfo{RoundID: 5}}, nil
}

func testJob(t *testing.T, name, schedule string) Job {
	t.Helper()
	params, err := workflow.NewRequestBuilder("https://api.example.com/x").
		PostProcess(".x").ResponseShape("(uint256)").Build()
	require.NoError(t, err)
	return Job{Name: name, Schedule: schedule, Timeout: time.Minute, Params: params}
}

func TestSchedulerRunsJobs(t *testing.T) {
	defer leaktest.Check(t)()

	runner := &fakeRunner{}
	var mu sync.Mutex
	results := map[string]int{}
	s := New(runner, zaptest.NewLogger(t).Sugar(), WithResultFunc(func(job string, res *workflow.Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		results[job]++
	}))

	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "every-second", "@every 1s")}))
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, results["every-second"], 1)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(runner, nil)
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "slow", "@every 1h")}))
	defer s.Stop()

	done := make(chan bool)
	go func() {
		ran, _ := s.Trigger("slow")
		done <- ran
	}()
	<-runner.started

	ran, err := s.Trigger("slow")
	require.NoError(t, err)
	assert.False(t, ran, "second run skipped while the first is in flight")

	close(runner.block)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestSchedulerRecoversPanics(t *testing.T) {
	s := New(&fakeRunner{panics: true}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "bad", "@every 1h")}))
	defer s.Stop()

	assert.NotPanics(t, func() { _, _ = s.Trigger("bad") })

	// The overlap guard is released after a panic.
	runner := s.runner.(*fakeRunner)
	runner.panics = false
	ran, err := s.Trigger("bad")
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSchedulerReportsFailures(t *testing.T) {
	var got error
	runner := &fakeRunner{err: &workflow.Timeout{Phase: workflow.PhaseProof, Limit: time.Minute}}
	s := New(runner, nil, WithResultFunc(func(_ string, _ *workflow.Result, err error) { got = err }))
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "j", "@every 1h")}))
	defer s.Stop()

	ran, err := s.Trigger("j")
	require.NoError(t, err)
	assert.True(t, ran)
	var timeout *workflow.Timeout
	assert.True(t, errors.As(got, &timeout))

	_, err = s.Trigger("unknown")
	assert.Error(t, err)
}

func TestSchedulerReload(t *testing.T) {
	s := New(&fakeRunner{}, nil)
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "a", "@every 1h")}))
	defer s.Stop()

	require.NoError(t, s.Reload([]Job{testJob(t, "b", "@every 1h"), testJob(t, "c", "@every 2h")}))
	assert.ElementsMatch(t, []string{"b", "c"}, s.Jobs())
}

func TestSchedulerStopCancelsRuns(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(runner, nil)
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "slow", "@every 1h")}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Trigger("slow")
	}()
	<-runner.started

	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled")
	}

	ran, err := s.Trigger("slow")
	require.NoError(t, err)
	assert.False(t, ran, "no runs after stop")
}

func TestSchedulerReloadRejectsDuplicatesAndKeepsJobs(t *testing.T) {
	s := New(&fakeRunner{}, nil)
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "a", "@every 1h")}))
	defer s.Stop()

	err := s.Reload([]Job{testJob(t, "b", "@every 1h"), testJob(t, "b", "@every 2h")})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, s.Jobs())
}

func TestSchedulerReloadFailureKeepsCurrentJobs(t *testing.T) {
	s := New(&fakeRunner{}, nil)
	require.NoError(t, s.Start(context.Background(), []Job{testJob(t, "a", "@every 1h")}))
	defer s.Stop()

	bad := testJob(t, "broken", "@every 1h")
	bad.Schedule = "not a schedule"
	err := s.Reload([]Job{testJob(t, "b", "@every 1h"), bad})
	require.Error(t, err)

	assert.Equal(t, []string{"a"}, s.Jobs())
	assert.Len(t, s.cron.Entries(), 1, "entries added before the failure are removed")

	ran, err := s.Trigger("a")
	require.NoError(t, err)
	assert.True(t, ran)
}
