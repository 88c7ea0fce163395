package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProtocolID = 200

func newTestWaiter(oracle FinalizationOracle, fc *fakeClock, opts ...WaiterOption) *RoundFinalizationWaiter {
	return NewRoundFinalizationWaiter(oracle, testProtocolID, append([]WaiterOption{withWaiterClock(fc.clock())}, opts...)...)
}

func TestWaitFinalizedImmediately(t *testing.T) {
	fc := newFakeClock()
	oracle := &fakeOracle{answers: []bool{true}}
	w := newTestWaiter(oracle, fc)

	require.NoError(t, w.Wait(context.Background(), 5, PollingPolicy{CheckInterval: time.Second, MaxWaitTime: time.Minute}))
	assert.Equal(t, 1, oracle.Calls())
	assert.Empty(t, fc.Sleeps())
}

func TestWaitPollsUntilFinalized(t *testing.T) {
	fc := newFakeClock()
	oracle := &fakeOracle{answers: []bool{false, false, true}}

	var mu sync.Mutex
	var states []WaitState
	w := newTestWaiter(oracle, fc, WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, p.State)
	}))

	require.NoError(t, w.Wait(context.Background(), 5, PollingPolicy{CheckInterval: 10 * time.Second, MaxWaitTime: time.Hour}))
	assert.Equal(t, 3, oracle.Calls())
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, fc.Sleeps())
	assert.Equal(t, []WaitState{WaitWaiting, WaitWaiting, WaitFinalized}, states)
}

func TestWaitAdaptiveIntervalIsMonotonicAndCapped(t *testing.T) {
	fc := newFakeClock()
	oracle := &fakeOracle{answers: []bool{false}}
	w := newTestWaiter(oracle, fc)

	policy := PollingPolicy{CheckInterval: 10 * time.Second, MaxWaitTime: 30 * time.Minute}
	err := w.Wait(context.Background(), 9, policy)

	var timeout *Timeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, PhaseFinalization, timeout.Phase)

	sleeps := fc.Sleeps()
	require.Greater(t, len(sleeps), 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 10*time.Second, sleeps[i], "no adaptation before five misses")
	}
	assert.Equal(t, 15*time.Second, sleeps[5])

	// Every sleep but the last (truncated to the deadline) follows the schedule.
	for i := 1; i < len(sleeps)-1; i++ {
		assert.GreaterOrEqual(t, sleeps[i], sleeps[i-1])
		assert.LessOrEqual(t, sleeps[i], DefaultMaxCheckInterval)
	}
	assert.Equal(t, DefaultMaxCheckInterval, sleeps[len(sleeps)-2])
}

func TestWaitNeverTimesOutEarly(t *testing.T) {
	fc := newFakeClock()
	start := fc.Now()
	oracle := &fakeOracle{answers: []bool{false}}
	w := newTestWaiter(oracle, fc)

	policy := PollingPolicy{CheckInterval: 7 * time.Second, MaxWaitTime: 100 * time.Second}
	err := w.Wait(context.Background(), 1, policy)

	var timeout *Timeout
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, policy.MaxWaitTime, timeout.Limit)
	assert.Equal(t, int64(100_000), timeout.LimitMs())
	assert.GreaterOrEqual(t, fc.Now().Sub(start), policy.MaxWaitTime)
	// Sleeps are bounded by the remaining time, so the deadline is not overshot.
	assert.Equal(t, policy.MaxWaitTime, fc.Now().Sub(start))
}

func TestWaitClampsInitialInterval(t *testing.T) {
	fc := newFakeClock()
	oracle := &fakeOracle{answers: []bool{false, true}}
	w := newTestWaiter(oracle, fc)

	require.NoError(t, w.Wait(context.Background(), 1, PollingPolicy{CheckInterval: 5 * time.Minute, MaxWaitTime: time.Hour}))
	assert.Equal(t, []time.Duration{DefaultMaxCheckInterval}, fc.Sleeps())
}

func TestWaitTreatsOracleErrorsAsNotFinalized(t *testing.T) {
	fc := newFakeClock()
	oracle := &fakeOracle{
		answers: []bool{false, false, true},
		errs:    []error{errors.New("rpc unavailable"), errors.New("rpc unavailable")},
	}
	w := newTestWaiter(oracle, fc)

	require.NoError(t, w.Wait(context.Background(), 1, PollingPolicy{CheckInterval: time.Second, MaxWaitTime: time.Minute}))
	assert.Equal(t, 3, oracle.Calls())
}

func TestWaitSurvivesPanickingProgress(t *testing.T) {
	fc := newFakeClock()
	oracle := &fakeOracle{answers: []bool{false, true}}
	w := newTestWaiter(oracle, fc, WithProgress(func(Progress) { panic("observer bug") }))

	assert.NotPanics(t, func() {
		require.NoError(t, w.Wait(context.Background(), 1, PollingPolicy{CheckInterval: time.Second, MaxWaitTime: time.Minute}))
	})
	assert.Equal(t, 2, oracle.Calls())
}

func TestWaitCancellation(t *testing.T) {
	defer leaktest.Check(t)()

	oracle := &fakeOracle{answers: []bool{false}}
	w := NewRoundFinalizationWaiter(oracle, testProtocolID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Wait(ctx, 1, PollingPolicy{CheckInterval: 10 * time.Millisecond, MaxWaitTime: time.Hour})
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("waiter did not stop after cancellation")
	}
}

func TestWaitRejectsInvalidPolicy(t *testing.T) {
	w := NewRoundFinalizationWaiter(&fakeOracle{}, testProtocolID)
	var cfgErr *ConfigError
	require.ErrorAs(t, w.Wait(context.Background(), 1, PollingPolicy{MaxWaitTime: time.Second}), &cfgErr)
	assert.Equal(t, "poll_check_interval", cfgErr.Field)
}
