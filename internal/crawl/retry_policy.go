package crawl

import (
	"time"

	"github.com/JakeFAU/tripsync/internal/trip"
)

// RetryPolicy decides whether a failed attempt is repeated on the same strategy.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// FixedRetryPolicy retries transient failures a bounded number of times with a
// constant delay.
type FixedRetryPolicy struct {
	maxRetries int
	delay      time.Duration
}

// NewFixedRetryPolicy builds a policy. Zero values fall back to 2 retries and 1s.
func NewFixedRetryPolicy(maxRetries int, delay time.Duration) *FixedRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &FixedRetryPolicy{maxRetries: maxRetries, delay: delay}
}

// DefaultRetryPolicy is two retries one second apart.
func DefaultRetryPolicy() *FixedRetryPolicy {
	return NewFixedRetryPolicy(2, time.Second)
}

// ShouldRetry reports whether attempt (1-based) may be followed by another.
// Only transient network failures qualify; timeouts never do.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt > p.maxRetries {
		return false
	}
	return trip.IsTransient(err)
}

// Backoff returns the wait before the next attempt.
func (p *FixedRetryPolicy) Backoff(int) time.Duration {
	return p.delay
}
