package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StatusValid is the only preparer status that yields a usable request.
const StatusValid = "VALID"

// PreparedRequest is the preparer's answer for one RequestParams.
type PreparedRequest struct {
	Status         string
	EncodedRequest []byte
}

// RoundInfo describes where a request landed. It is created once at
// submission time and never modified.
type RoundInfo struct {
	RoundID             uint64
	SubmissionBlock     uint64
	SubmissionTimestamp uint64
	ExplorerRef         string
}

// ProofRecord is the proof-distribution service's answer for a finalized
// round. Records are immutable facts about that round.
type ProofRecord struct {
	ResponseBytes   []byte
	AttestationKind string
	ProofPath       []common.Hash
}

// Fingerprint identifies a proof: the encoded request plus the voting round it
// was submitted in. It is comparable and used directly as a map key.
type Fingerprint struct {
	EncodedRequest string // lowercase 0x-prefixed hex
	RoundID        uint64
}

// NewFingerprint builds the cache key for encodedRequest in roundID.
func NewFingerprint(encodedRequest []byte, roundID uint64) Fingerprint {
	return Fingerprint{
		EncodedRequest: strings.ToLower(hexutil.Encode(encodedRequest)),
		RoundID:        roundID,
	}
}

// RetryPolicy configures RetryStrategy.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Validate rejects policies RetryStrategy cannot execute.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts <= 0:
		return &ConfigError{Field: "retry_max_attempts", Reason: "must be at least 1"}
	case p.InitialDelay < 0:
		return &ConfigError{Field: "retry_initial_delay", Reason: "must not be negative"}
	case p.MaxDelay < p.InitialDelay:
		return &ConfigError{Field: "retry_max_delay", Reason: "must not be less than retry_initial_delay"}
	case p.BackoffMultiplier < 1:
		return &ConfigError{Field: "retry_backoff_multiplier", Reason: "must be >= 1"}
	}
	return nil
}

// PollingPolicy configures the finalization and proof polling loops.
type PollingPolicy struct {
	CheckInterval time.Duration
	MaxWaitTime   time.Duration
}

// Validate rejects policies that would busy-poll or never time out.
func (p PollingPolicy) Validate() error {
	switch {
	case p.CheckInterval <= 0:
		return &ConfigError{Field: "poll_check_interval", Reason: "must be positive"}
	case p.MaxWaitTime <= 0:
		return &ConfigError{Field: "poll_max_wait_time", Reason: "must be positive"}
	}
	return nil
}

// PrepareRequest is what the preparer service receives.
type PrepareRequest struct {
	Params          RequestParams
	AttestationKind string
	SourceID        string
}

// Submission is the ledger's receipt for a submitted request. RoundID is
// derived by the submitter from the block timestamp and protocol parameters.
type Submission struct {
	RoundID        uint64
	BlockNumber    uint64
	BlockTimestamp uint64
	TxHash         common.Hash
	ExplorerRef    string
}

// Preparer encodes a request through the remote preparer service.
// Non-success responses must be returned as *TransientServiceError, and a
// status other than StatusValid as *ValidationError.
type Preparer interface {
	Prepare(ctx context.Context, req PrepareRequest) (*PreparedRequest, error)
}

// Submitter submits an encoded request to the ledger. Submissions are
// fee-paying; the engine calls Submit at most once per workflow.
type Submitter interface {
	Submit(ctx context.Context, encodedRequest []byte) (*Submission, error)
}

// FinalizationOracle reports whether a voting round is finalized.
type FinalizationOracle interface {
	IsFinalized(ctx context.Context, protocolID uint64, roundID uint64) (bool, error)
}

// ProofService fetches the proof for encodedRequest in roundID. Any error
// other than a context error means "not yet available".
type ProofService interface {
	FetchProof(ctx context.Context, roundID uint64, encodedRequest []byte) (*ProofRecord, error)
}
