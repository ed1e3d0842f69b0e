package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))

	// Out-of-range retry numbers clamp to the first wait.
	assert.Equal(t, time.Second, p.Backoff(0))
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{MaxRetries: -1}.normalized()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, time.Second, p.Base)

	p = RetryPolicy{MaxRetries: 5, Base: 100 * time.Millisecond}.normalized()
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, p.Base)
}

func TestSleep_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_Completes(t *testing.T) {
	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
