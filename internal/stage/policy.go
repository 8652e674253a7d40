package stage

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// jitterFactor bounds the random perturbation of a wait to +/-50%.
const jitterFactor = 0.5

// RetryPolicy governs re-invocation of a failed stage attempt. After attempt k
// fails the runner waits min(MaxBackoff, MinBackoff*Multiplier^(k-1)).
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultRetryPolicy: 3 attempts, 1s doubling to 10s, randomized.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinBackoff:  time.Second,
		MaxBackoff:  10 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// NoRetry runs a stage exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.MinBackoff < 0 {
		p.MinBackoff = 0
	}
	if p.MaxBackoff < p.MinBackoff {
		p.MaxBackoff = p.MinBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// Delay is the un-jittered wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.MinBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if d >= float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// backOff builds the schedule consumed by backoff.RetryNotifyWithTimer. It
// allows MaxAttempts-1 retries and stops early when ctx is done.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	p = p.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.MinBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = 0
	exp.RandomizationFactor = 0
	if p.Jitter {
		exp.RandomizationFactor = jitterFactor
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}
