package selector

import (
	"sync"
	"sync/atomic"
)

// Balancer breaks ties among equally qualified agents with a per-capability
// round-robin cursor and keeps per-agent selection counters for the routing
// stats. State is keyed with lock-free atomics per entry, so rotations for
// one capability never serialize selections for another.
type Balancer struct {
	cursors sync.Map // capability -> *uint64 rotation cursor
	counts  sync.Map // agent -> *uint64 selection counter
}

// NewBalancer constructs an empty Balancer.
func NewBalancer() *Balancer {
	return &Balancer{}
}

// Next picks one of the candidates for the capability pool, advancing the
// pool's rotation cursor. For a pool of size k, k consecutive selections
// visit each candidate exactly once before any repeats. Candidates must be
// in a stable order for the rotation to be meaningful.
func (b *Balancer) Next(capability string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 {
		b.count(candidates[0])
		return candidates[0]
	}

	cursor := b.counter(&b.cursors, capability)
	idx := (atomic.AddUint64(cursor, 1) - 1) % uint64(len(candidates))
	selected := candidates[idx]
	b.count(selected)
	return selected
}

// Record counts a selection made outside the rotation (e.g. domain
// fallback), so the load distribution stays complete.
func (b *Balancer) Record(agent string) {
	b.count(agent)
}

// Distribution returns the per-agent selection counts.
func (b *Balancer) Distribution() map[string]uint64 {
	out := map[string]uint64{}
	b.counts.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadUint64(v.(*uint64))
		return true
	})
	return out
}

func (b *Balancer) count(agent string) {
	atomic.AddUint64(b.counter(&b.counts, agent), 1)
}

func (b *Balancer) counter(m *sync.Map, key string) *uint64 {
	if v, ok := m.Load(key); ok {
		return v.(*uint64)
	}
	v, _ := m.LoadOrStore(key, new(uint64))
	return v.(*uint64)
}
