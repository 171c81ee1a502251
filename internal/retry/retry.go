// Package retry runs an operation with capped exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts  int           // total attempts, including the first
	InitialDelay time.Duration // delay before the second attempt
	Multiplier   float64       // growth factor between delays
	MaxDelay     time.Duration // hard cap on any single delay, jitter included
	Jitter       float64       // randomization factor in [0,1)
}

// DefaultPolicy is used for profile writes.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		Jitter:       0.5,
	}
}

// ErrMaxAttemptsExceeded indicates every attempt failed.
var ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")

// Notify is called after a failed attempt that will be retried.
type Notify func(attempt int, err error, next time.Duration)

// Do calls op until it succeeds, the attempt budget runs out, or ctx is done.
// Cancellation stops scheduling further attempts and returns ctx.Err().
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error, notify Notify) error {
	policy = policy.normalized()

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		lastErr = op(ctx)
		return lastErr
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) {
			notify(attempts, err, next)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(NewBackOff(policy), uint64(policy.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(operation, b, onRetry)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w after %d attempts: %v", ErrMaxAttemptsExceeded, attempts, lastErr)
	}
}

// NewBackOff builds the delay schedule for a policy. Delays never exceed
// MaxDelay, even after jitter is applied.
func NewBackOff(policy Policy) backoff.BackOff {
	policy = policy.normalized()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialDelay
	exp.Multiplier = policy.Multiplier
	exp.MaxInterval = policy.MaxDelay
	exp.RandomizationFactor = policy.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &capped{BackOff: exp, max: policy.MaxDelay}
}

// Budget is an upper bound on the total time spent waiting between attempts.
func (p Policy) Budget() time.Duration {
	p = p.normalized()
	return time.Duration(p.MaxAttempts-1) * p.MaxDelay
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = def.Jitter
	}
	return p
}

type capped struct {
	backoff.BackOff
	max time.Duration
}

func (c *capped) NextBackOff() time.Duration {
	next := c.BackOff.NextBackOff()
	if next != backoff.Stop && next > c.max {
		return c.max
	}
	return next
}
