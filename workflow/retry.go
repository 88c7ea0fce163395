package workflow

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryStrategy runs a fallible operation up to RetryPolicy.MaxAttempts times
// with capped exponential backoff between attempts. It holds no mutable
// state and may be shared by concurrent workflows.
type RetryStrategy struct {
	policy RetryPolicy
}

// NewRetryStrategy validates policy. A zero MaxAttempts is a configuration
// error.
func NewRetryStrategy(policy RetryPolicy) (*RetryStrategy, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RetryStrategy{policy: policy}, nil
}

// Policy returns the policy the strategy was built with.
func (s *RetryStrategy) Policy() RetryPolicy {
	return s.policy
}

func (s *RetryStrategy) newBackOff(ctx context.Context) backoff.BackOff {
	// WithMaxRetries treats 0 as unlimited, so a single attempt needs an
	// explicit stop.
	if s.policy.MaxAttempts == 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.policy.InitialDelay
	exp.MaxInterval = s.policy.MaxDelay
	exp.Multiplier = s.policy.BackoffMultiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.policy.MaxAttempts-1)), ctx)
}

// Execute calls op until it succeeds, returns a non-retryable error, ctx is
// done, or the attempt budget is spent. onRetry, when non-nil, is called with
// the 1-based number of the failed attempt before each backoff sleep.
//
// Non-retryable errors (see IsRetryable) and context errors are returned
// unchanged. A spent budget yields *RetryExhausted carrying the last error.
func Execute[T any](ctx context.Context, s *RetryStrategy, op func(context.Context) (T, error), onRetry func(attempt int, err error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var (
		attempt int
		lastErr error
	)
	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return v, backoff.Permanent(err)
			}
			return v, err
		}
		return v, nil
	}, s.newBackOff(ctx), func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	})
	if err == nil {
		return result, nil
	}

	if !IsRetryable(err) {
		return zero, err
	}
	if attempt >= s.policy.MaxAttempts {
		return zero, &RetryExhausted{Attempts: attempt, LastErr: lastErr}
	}
	return zero, err
}
