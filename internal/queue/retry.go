// Package queue holds the retry policy and errors shared by the job queue backends.
package queue

import (
	"errors"
	"time"
)

// Defaults mirror a bull-style queue: three attempts, exponential backoff from two seconds.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// ErrNotActive is returned when completing or failing a job this queue did not hand out.
var ErrNotActive = errors.New("job is not active")

// RetryPolicy decides whether a failed attempt is retried and after how long.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Attempts returns the effective maximum number of attempts.
func (p RetryPolicy) Attempts() int {
	return p.normalized().MaxAttempts
}

// ShouldRetry reports whether a job that has made attemptsMade attempts gets another.
func (p RetryPolicy) ShouldRetry(attemptsMade int) bool {
	return attemptsMade < p.normalized().MaxAttempts
}

// Backoff returns the wait after the n-th failed attempt: base * 2^(n-1).
func (p RetryPolicy) Backoff(failedAttempt int) time.Duration {
	p = p.normalized()
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < failedAttempt; i++ {
		if delay > time.Hour {
			return delay
		}
		delay *= 2
	}
	return delay
}
