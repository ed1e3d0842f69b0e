// Package resilience carries the cross-cutting reliability concerns of agent
// invocation: per-agent circuit breakers, bounded retry with exponential
// backoff, and a decorator composing both around an Invoker so the execution
// engine stays mode-agnostic.
package resilience

import (
	"sync"
	"time"
)

// DefaultBreakerThreshold opens a breaker after this many consecutive
// failures when no threshold is configured.
const DefaultBreakerThreshold = 3

// BreakerSnapshot is a point-in-time view of all breaker state, exposed via
// the routing stats endpoint.
type BreakerSnapshot struct {
	Open          []string       `json:"open_circuit_breakers"`
	FailureCounts map[string]int `json:"agent_failure_counts"`
}

// Board tracks circuit breaker state per agent identity. Each agent has its
// own entry with its own lock, so bookkeeping for one agent never serializes
// requests touching other agents. All breakers start closed with a zero
// failure count; any success closes the breaker and zeroes the counter.
type Board struct {
	threshold int
	entries   sync.Map // agent -> *breakerEntry
}

type breakerEntry struct {
	mu          sync.Mutex
	consecutive int
	open        bool
	lastFailure time.Time
}

// NewBoard constructs a Board with the given consecutive-failure threshold.
// A non-positive threshold falls back to DefaultBreakerThreshold.
func NewBoard(threshold int) *Board {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return &Board{threshold: threshold}
}

func (b *Board) entry(agent string) *breakerEntry {
	v, _ := b.entries.LoadOrStore(agent, &breakerEntry{})
	return v.(*breakerEntry)
}

// Allow reports whether the agent's breaker is closed. Open breakers exclude
// the agent from selection entirely; if a breaker opens mid-execution the
// engine records a skipped failure outcome instead of invoking.
func (b *Board) Allow(agent string) bool {
	e := b.entry(agent)
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.open
}

// RecordSuccess zeroes the failure counter and closes the breaker.
func (b *Board) RecordSuccess(agent string) {
	e := b.entry(agent)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutive = 0
	e.open = false
}

// RecordFailure increments the consecutive failure counter and opens the
// breaker once the threshold is reached. It reports whether this call opened
// the breaker.
func (b *Board) RecordFailure(agent string) (opened bool) {
	e := b.entry(agent)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutive++
	e.lastFailure = time.Now()
	if !e.open && e.consecutive >= b.threshold {
		e.open = true
		opened = true
	}
	return opened
}

// Reset manually closes the breaker for one agent and zeroes its counter.
func (b *Board) Reset(agent string) {
	if v, ok := b.entries.Load(agent); ok {
		e := v.(*breakerEntry)
		e.mu.Lock()
		e.consecutive = 0
		e.open = false
		e.mu.Unlock()
	}
}

// ResetAll closes every breaker.
func (b *Board) ResetAll() {
	b.entries.Range(func(_, v any) bool {
		e := v.(*breakerEntry)
		e.mu.Lock()
		e.consecutive = 0
		e.open = false
		e.mu.Unlock()
		return true
	})
}

// Snapshot returns the current open set and non-zero failure counts.
func (b *Board) Snapshot() BreakerSnapshot {
	snap := BreakerSnapshot{FailureCounts: map[string]int{}}
	b.entries.Range(func(k, v any) bool {
		agent := k.(string)
		e := v.(*breakerEntry)
		e.mu.Lock()
		if e.open {
			snap.Open = append(snap.Open, agent)
		}
		if e.consecutive > 0 {
			snap.FailureCounts[agent] = e.consecutive
		}
		e.mu.Unlock()
		return true
	})
	return snap
}
