package selector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalancer_NextRotation(t *testing.T) {
	b := NewBalancer()
	candidates := []string{"a", "b", "c"}

	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, b.Next("cap", candidates))
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestBalancer_IndependentCursors(t *testing.T) {
	b := NewBalancer()
	candidates := []string{"a", "b"}

	assert.Equal(t, "a", b.Next("cap1", candidates))
	// A different capability pool has its own cursor.
	assert.Equal(t, "a", b.Next("cap2", candidates))
	assert.Equal(t, "b", b.Next("cap1", candidates))
}

func TestBalancer_SingleCandidate(t *testing.T) {
	b := NewBalancer()
	assert.Equal(t, "only", b.Next("cap", []string{"only"}))
	assert.Equal(t, "", b.Next("cap", nil))
}

func TestBalancer_Distribution(t *testing.T) {
	b := NewBalancer()
	candidates := []string{"a", "b"}
	for i := 0; i < 4; i++ {
		b.Next("cap", candidates)
	}
	b.Record("fallback_agent")

	dist := b.Distribution()
	assert.Equal(t, uint64(2), dist["a"])
	assert.Equal(t, uint64(2), dist["b"])
	assert.Equal(t, uint64(1), dist["fallback_agent"])
}

func TestBalancer_ConcurrentFairness(t *testing.T) {
	b := NewBalancer()
	candidates := []string{"a", "b", "c"}

	const n = 300
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Next("cap", candidates)
		}()
	}
	wg.Wait()

	dist := b.Distribution()
	assert.Equal(t, uint64(n/3), dist["a"])
	assert.Equal(t, uint64(n/3), dist["b"])
	assert.Equal(t, uint64(n/3), dist["c"])
}
