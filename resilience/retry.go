package resilience

import (
	"context"
	"time"
)

// RetryPolicy bounds the attempt sequence for one agent call.
//
// The backoff base is fixed at 1s by default and doubles per retry
// (1s, 2s, 4s before retries 1, 2, 3). The surrounding documentation of the
// source system disagreed with itself about the first wait (1s vs 2s); this
// implementation standardizes on a 1s base.
type RetryPolicy struct {
	// MaxRetries is the number of retries beyond the first attempt, so the
	// total attempt count is MaxRetries+1. Default 3 (4 total attempts).
	MaxRetries int
	// Base is the first backoff wait; each subsequent wait doubles.
	Base time.Duration
}

// DefaultRetryPolicy retries three times with 1s/2s/4s waits.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Base: time.Second}

// normalized fills zero values with defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Base <= 0 {
		p.Base = DefaultRetryPolicy.Base
	}
	return p
}

// Backoff returns the wait before the given retry (1-based): Base<<(retry-1).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	return p.Base << uint(retry-1)
}

// sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case so retry loops abandon waiting when the request deadline expires.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
