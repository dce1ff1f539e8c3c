package relay

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds how often a relay operation is attempted and how long
// to wait between attempts. MaxAttempts of 1 disables retrying.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64 // randomization factor, 0 for a fixed schedule
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
		Jitter:          0.2,
	}
}

// NoRetry attempts every operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// run calls op until it succeeds, returns a permanent error, the attempts
// are exhausted or ctx ends. Waits happen on clock. op receives the
// 1-based attempt number.
func (p RetryPolicy) run(ctx context.Context, clock clockwork.Clock, op func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := p.newBackOff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-clock.After(b.NextBackOff()):
			}
		}

		err := op(attempt)
		if err == nil {
			return attempt, nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return attempt, permanent.Unwrap()
		}
		lastErr = err
	}
	return maxAttempts, lastErr
}

// permanentIfFinal marks relay responses that a retry cannot fix.
func permanentIfFinal(err error) error {
	var status *StatusError
	if errors.As(err, &status) && status.Permanent() {
		return backoff.Permanent(err)
	}
	return err
}
