package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on sleep and records every requested duration.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
	f.sleeps = append(f.sleeps, d)
	return nil
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func (f *fakeClock) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func (f *fakeClock) clock() clock {
	return clock{now: f.Now, sleep: f.Sleep}
}

// fakeOracle answers from a script; once exhausted it repeats the last answer.
type fakeOracle struct {
	mu      sync.Mutex
	answers []bool
	errs    []error
	calls   int
}

func (o *fakeOracle) IsFinalized(ctx context.Context, protocolID, roundID uint64) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.calls
	o.calls++
	var err error
	if i < len(o.errs) {
		err = o.errs[i]
	}
	if len(o.answers) == 0 {
		return false, err
	}
	if i >= len(o.answers) {
		i = len(o.answers) - 1
	}
	return o.answers[i], err
}

func (o *fakeOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

var errNotReady = errors.New("proof not ready")

// fakeProofs fails the first `failures` calls, then returns record.
type fakeProofs struct {
	mu       sync.Mutex
	failures int
	record   *ProofRecord
	err      error
	calls    int
}

func (p *fakeProofs) FetchProof(ctx context.Context, roundID uint64, encodedRequest []byte) (*ProofRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures || p.record == nil {
		if p.err != nil {
			return nil, p.err
		}
		return nil, errNotReady
	}
	rec := *p.record
	return &rec, nil
}

func (p *fakeProofs) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type prepareResult struct {
	prepared *PreparedRequest
	err      error
}

// fakePreparer replays results; once exhausted it repeats the last one.
type fakePreparer struct {
	mu      sync.Mutex
	results []prepareResult
	calls   int
	last    PrepareRequest
}

func (p *fakePreparer) Prepare(ctx context.Context, req PrepareRequest) (*PreparedRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.calls, len(p.results)-1)
	p.calls++
	p.last = req
	r := p.results[i]
	return r.prepared, r.err
}

func (p *fakePreparer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeSubmitter struct {
	mu      sync.Mutex
	roundID uint64
	err     error
	calls   int
	got     [][]byte
}

func (s *fakeSubmitter) Submit(ctx context.Context, encodedRequest []byte) (*Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.got = append(s.got, encodedRequest)
	if s.err != nil {
		return nil, s.err
	}
	return &Submission{
		RoundID:        s.roundID,
		BlockNumber:    1000 + uint64(s.calls),
		BlockTimestamp: 1_700_000_000,
		TxHash:         common.HexToHash("0x01"),
		ExplorerRef:    "https://explorer.test/tx/0x01",
	}, nil
}

func (s *fakeSubmitter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func validPrepared(encoded []byte) prepareResult {
	return prepareResult{prepared: &PreparedRequest{Status: StatusValid, EncodedRequest: encoded}}
}

func testParams(t *testing.T) RequestParams {
	t.Helper()
	p, err := NewRequestBuilder("https://api.example.com/v1/price").
		Query("symbol", "BTC").
		PostProcess(".price").
		ResponseShape("(uint256)").
		Build()
	require.NoError(t, err)
	return p
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}
