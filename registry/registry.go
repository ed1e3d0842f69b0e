// Package registry implements the authoritative agent registry: identity to
// descriptor mapping with domain and capability indexes, YAML manifest
// loading and a periodic health-check cycle.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// now is swappable in tests.
var now = time.Now

// InMemory is a process-local core.Registry implementation backed by maps
// under a single RWMutex. Reads take the read lock only, so a health-check
// cycle writing statuses never blocks concurrent route requests for long.
// Returned descriptors are clones; callers cannot mutate registry state.
type InMemory struct {
	mu           sync.RWMutex
	agents       map[string]*core.AgentDescriptor
	byDomain     map[string][]string
	byCapability map[string][]string
	logger       logging.Logger
}

// Options configures an InMemory registry.
type Options struct {
	Logger logging.Logger
}

// NewInMemory constructs an empty registry.
func NewInMemory(optFns ...func(o *Options)) *InMemory {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemory{
		agents:       map[string]*core.AgentDescriptor{},
		byDomain:     map[string][]string{},
		byCapability: map[string][]string{},
		logger:       logging.OrNoOp(opts.Logger),
	}
}

// Register adds a descriptor under its name. The capability set is indexed
// once at registration time; re-registering requires a distinct name or a
// prior removal, so Register fails with core.ErrDuplicateAgent on conflict.
func (r *InMemory) Register(d *core.AgentDescriptor) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("descriptor must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[d.Name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateAgent, d.Name)
	}

	clone := d.Clone()
	if clone.Status == "" {
		clone.Status = core.HealthUnknown
	}

	r.agents[clone.Name] = clone
	r.byDomain[clone.Domain] = append(r.byDomain[clone.Domain], clone.Name)
	for _, cap := range clone.Capabilities {
		key := strings.ToLower(cap)
		r.byCapability[key] = append(r.byCapability[key], clone.Name)
	}

	r.logger.Info("agent registered", "agent", clone.Name, "domain", clone.Domain, "capabilities", clone.Capabilities)

	return nil
}

// Get returns a clone of the descriptor for name or core.ErrAgentNotFound.
func (r *InMemory) Get(name string) (*core.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
	}
	return d.Clone(), nil
}

// ListByDomain returns every agent in a domain, independent of health.
func (r *InMemory) ListByDomain(domain string) []*core.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloneAllLocked(r.byDomain[domain])
}

// ListByCapability returns every agent whose capability set contains tag
// (case-insensitive exact match), independent of health.
func (r *InMemory) ListByCapability(tag string) []*core.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cloneAllLocked(r.byCapability[strings.ToLower(tag)])
}

// All returns every registered agent in name order.
func (r *InMemory) All() []*core.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return r.cloneAllLocked(names)
}

// Domains lists every domain with at least one agent, sorted.
func (r *InMemory) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byDomain)
}

// Capabilities lists every declared capability tag, sorted.
func (r *InMemory) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.byCapability)
}

// SetHealth updates an agent's health status and probe timestamp. Setting
// the same status twice is a no-op beyond the timestamp refresh.
func (r *InMemory) SetHealth(name string, status core.HealthStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
	}
	if d.Status != status {
		r.logger.Info("agent health changed", "agent", name, "from", string(d.Status), "to", string(status))
	}
	d.Status = status
	d.LastHealthCheck = now()
	return nil
}

// Stats summarizes the registry for the operational stats endpoint.
func (r *InMemory) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statusCounts := map[string]int{}
	for _, d := range r.agents {
		statusCounts[string(d.Status)]++
	}
	perDomain := map[string]int{}
	for domain, names := range r.byDomain {
		perDomain[domain] = len(names)
	}
	return map[string]any{
		"total_agents":     len(r.agents),
		"domains":          len(r.byDomain),
		"capabilities":     len(r.byCapability),
		"status_breakdown": statusCounts,
		"agents_by_domain": perDomain,
	}
}

func (r *InMemory) cloneAllLocked(names []string) []*core.AgentDescriptor {
	out := make([]*core.AgentDescriptor, 0, len(names))
	for _, name := range names {
		if d, ok := r.agents[name]; ok {
			out = append(out, d.Clone())
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
