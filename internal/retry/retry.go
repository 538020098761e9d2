// Package retry runs an operation under a bounded attempt budget with a
// pluggable backoff schedule.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how an operation is retried. The zero value runs the
// operation once.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int
	// Backoff returns the delay after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable reports whether err may be retried. Nil retries everything.
	Retryable func(err error) bool
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	// NewTimer overrides the timer used for sleeping.
	NewTimer func() backoff.Timer
}

// Linear waits attempt × base.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// NewLinear is the policy used for remote calls: max attempts with linear backoff.
func NewLinear(maxAttempts int, base time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Backoff: Linear(base)}
}

// Do calls fn until it succeeds, the budget is spent, or fn returns a
// non-retryable error. The error of the last attempt is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
	}

	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}

	b := &schedule{max: p.MaxAttempts, delay: p.Backoff}
	return backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), notify, timer)
}

// schedule is a backoff.BackOff that stops after max attempts.
type schedule struct {
	max     int
	attempt int
	delay   func(int) time.Duration
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	if s.attempt >= s.max {
		return backoff.Stop
	}
	if s.delay == nil {
		return 0
	}
	return s.delay(s.attempt)
}

func (s *schedule) Reset() {
	s.attempt = 0
}
