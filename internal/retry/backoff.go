// Package retry holds the resilience policies used around Backend
// Gateway calls: exponential backoff for idempotent reads and a
// circuit breaker for every call.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Permanent marks err as not worth retrying.  [Policy.Do] returns the
// inner error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Policy describes an exponential backoff schedule.
type Policy struct {
	// InitialDelay is the wait before the first retry (default 100ms).
	InitialDelay time.Duration
	// MaxDelay caps a single wait (default 2s).
	MaxDelay time.Duration
	// MaxAttempts counts the first try.  0 retries until ctx ends.
	MaxAttempts int
	// Jitter is the randomization factor, 0 disables it.
	Jitter float64
}

// DefaultPolicy is the schedule for remote backend reads.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		MaxAttempts:  3,
		Jitter:       backoff.DefaultRandomizationFactor,
	}
}

// Do runs fn until it succeeds, returns a [Permanent] error, runs out
// of attempts, or ctx is done.  notify, when non-nil, sees every
// failed attempt before its wait.
func (p Policy) Do(ctx context.Context, fn func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(fn, p.backOff(ctx), notify)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 100 * time.Millisecond
	}
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = 2 * time.Second
	}
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}
