package requery

import (
	"time"

	internalbackoff "github.com/requery-go/requery/internal/backoff"
)

// RetryPolicy decides whether a failed fetch should be retried and after what
// delay. failures is the number of failures so far (1 for the first failure).
type RetryPolicy interface {
	ShouldRetry(err error, failures int) (time.Duration, bool)
}

// DefaultRetryPolicy retries up to a fixed number of times with a
// configurable backoff strategy.
type DefaultRetryPolicy struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         float64
	strategy       internalbackoff.Strategy
}

// NewDefaultRetryPolicy creates a retry policy with exponential-jitter
// backoff.
func NewDefaultRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return &DefaultRetryPolicy{
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		multiplier:     multiplier,
		jitter:         jitter,
		strategy:       internalbackoff.ExponentialJitterStrategy{},
	}
}

// NewDefaultRetryPolicyWithStrategy creates a retry policy with a specific
// backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	p := NewDefaultRetryPolicy(maxRetries, initialBackoff, maxBackoff, multiplier, jitter)
	p.strategy = strategyFor(strategy)
	return p
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(err error, failures int) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	if failures > p.maxRetries {
		return 0, false
	}
	return p.delay(failures), true
}

func (p *DefaultRetryPolicy) delay(failures int) time.Duration {
	return p.strategy.Calculate(failures-1, p.initialBackoff, p.maxBackoff, p.multiplier, p.jitter)
}

func strategyFor(s BackoffStrategy) internalbackoff.Strategy {
	switch s {
	case DecorrelatedJitter:
		return internalbackoff.DecorrelatedJitterStrategy{}
	default:
		return internalbackoff.ExponentialJitterStrategy{}
	}
}
