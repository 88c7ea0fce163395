package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind (or errors.As on the concrete types) rather
// than on error strings.
type Kind string

const (
	KindNone       Kind = "none"
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindExhausted  Kind = "retry_exhausted"
	KindTimeout    Kind = "timeout"
	KindProtocol   Kind = "protocol"
	KindConfig     Kind = "config"
	KindCancelled  Kind = "cancelled"
	KindUnknown    Kind = "unknown"
)

// Timeout phases.
const (
	PhaseFinalization = "finalization"
	PhaseProof        = "proof"
)

// ValidationError reports malformed requester input. It is detected before
// any network call where possible and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// TransientServiceError is a network failure or a non-success HTTP status
// from a remote service. RetryStrategy retries it.
type TransientServiceError struct {
	Service    string
	StatusCode int // 0 when no response was received
	Cause      error
}

func (e *TransientServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Cause != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Service, e.Cause)
	}
}

func (e *TransientServiceError) Unwrap() error { return e.Cause }

// RetryExhausted is returned when every attempt of a RetryStrategy failed.
type RetryExhausted struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhausted) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhausted) Unwrap() error { return e.LastErr }

// Timeout is returned when a polling deadline elapses. Phase is either
// PhaseFinalization or PhaseProof.
type Timeout struct {
	Phase   string
	Limit   time.Duration
	LastErr error // last "not yet available" reason, if any
}

func (e *Timeout) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%s phase timed out after %s (last: %v)", e.Phase, e.Limit, e.LastErr)
	}
	return fmt.Sprintf("%s phase timed out after %s", e.Phase, e.Limit)
}

func (e *Timeout) Unwrap() error { return e.LastErr }

// LimitMs returns the configured limit in milliseconds.
func (e *Timeout) LimitMs() int64 { return e.Limit.Milliseconds() }

// ProtocolError is a success-shaped response whose payload does not meet
// structural expectations, e.g. a proof response missing its fields.
type ProtocolError struct {
	Service string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol error: %s", e.Service, e.Reason)
}

// BroadcastError reports a submission whose transaction was broadcast but
// whose inclusion could not be confirmed. The fee may already be spent, so
// callers should look the transaction up before submitting again.
type BroadcastError struct {
	TxHash      common.Hash
	ExplorerRef string
	Err         error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("transaction %s broadcast but unconfirmed: %v", e.TxHash.Hex(), e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }

// ConfigError reports an invalid engine configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// WorkflowError carries the orchestrator phase in which a run failed, plus
// whatever the run had produced before failing. A non-nil Round means the
// request is on the ledger and only proof retrieval needs repeating (see
// Orchestrator.ResumeProof); resubmitting would pay the fee twice. A non-nil
// TxHash with a nil Round means a transaction was broadcast but never
// confirmed.
type WorkflowError struct {
	RunID    string
	Phase    State
	Prepared *PreparedRequest
	Round    *RoundInfo
	TxHash   *common.Hash
	Err      error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s failed in %s: %v", e.RunID, e.Phase, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// KindOf classifies err into one of the Kind values. Terminal wrappers take
// precedence, so a RetryExhausted wrapping a transient error reports
// KindExhausted.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		validation *ValidationError
		transient  *TransientServiceError
		exhausted  *RetryExhausted
		timeout    *Timeout
		protocol   *ProtocolError
		cfg        *ConfigError
	)
	switch {
	case errors.As(err, &exhausted):
		return KindExhausted
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &protocol):
		return KindProtocol
	case errors.As(err, &cfg):
		return KindConfig
	case errors.As(err, &transient):
		return KindTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether RetryStrategy should try again after err.
// Malformed input, malformed payloads, configuration problems and context
// termination are permanent; everything else is treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindProtocol, KindConfig, KindCancelled:
		return false
	default:
		return true
	}
}
