package core

import (
	"strings"
	"time"
)

// HealthStatus describes the last known health of a registered agent.
type HealthStatus string

const (
	// HealthHealthy means the last health probe succeeded.
	HealthHealthy HealthStatus = "healthy"
	// HealthUnhealthy means the last health probe failed.
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthUnknown means the agent has not been probed yet.
	HealthUnknown HealthStatus = "unknown"
)

// ExecutionMode selects the orchestration strategy applied to the agents
// chosen for a single request.
type ExecutionMode string

const (
	// ModeSequential invokes agents one at a time, feeding each agent the
	// outputs of its predecessors.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel invokes all agents concurrently with identical input.
	ModeParallel ExecutionMode = "parallel"
	// ModeConditional behaves like sequential but halts on the first failure.
	ModeConditional ExecutionMode = "conditional"
)

// Valid reports whether m is one of the known execution modes.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeConditional:
		return true
	}
	return false
}

// Urgency is the classified time sensitivity of a request.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// AgentDescriptor is the registry's authoritative record for one agent:
// identity, domain, declared capabilities, endpoint and invocation budgets.
// The capability set is fixed after registration; changing it requires
// re-registration under the same name.
type AgentDescriptor struct {
	Name            string        `json:"name"`
	Domain          string        `json:"domain"`
	Capabilities    []string      `json:"capabilities"`
	Description     string        `json:"description,omitempty"`
	Endpoint        string        `json:"endpoint"`
	HealthEndpoint  string        `json:"health_endpoint,omitempty"`
	Timeout         time.Duration `json:"timeout"`
	RetryBudget     int           `json:"retry_budget"`
	Status          HealthStatus  `json:"status"`
	LastHealthCheck time.Time     `json:"last_health_check,omitempty"`
}

// HasCapability reports whether the descriptor declares tag as a capability.
// Matching is case-insensitive and exact.
func (d *AgentDescriptor) HasCapability(tag string) bool {
	for _, c := range d.Capabilities {
		if strings.EqualFold(c, tag) {
			return true
		}
	}
	return false
}

// Routable reports whether the agent may be considered for selection based
// on health alone. Agents that have never been probed are routable; only a
// failed probe removes an agent from consideration.
func (d *AgentDescriptor) Routable() bool {
	return d.Status != HealthUnhealthy
}

// Clone returns a deep copy safe for independent mutation.
func (d *AgentDescriptor) Clone() *AgentDescriptor {
	clone := *d
	clone.Capabilities = make([]string, len(d.Capabilities))
	copy(clone.Capabilities, d.Capabilities)
	return &clone
}

// IntentClassification is the structured result of intent analysis for one
// inbound message. It is created once per request and never mutated.
type IntentClassification struct {
	Domain               string        `json:"domain"`
	Intent               string        `json:"intent"`
	RequiredCapabilities []string      `json:"required_capabilities"`
	Urgency              Urgency       `json:"urgency"`
	MultiAgent           bool          `json:"multi_agent"`
	Mode                 ExecutionMode `json:"execution_mode"`
	Rationale            string        `json:"reasoning,omitempty"`
}

// DefaultClassification is the conservative classification the router falls
// back to when the classifier is unavailable or returns malformed output.
// Routing quality degrades but the request is still served.
func DefaultClassification() *IntentClassification {
	return &IntentClassification{
		Domain:     "unknown",
		Urgency:    UrgencyMedium,
		MultiAgent: false,
		Mode:       ModeSequential,
	}
}

// Normalize fills in defaults for missing or unrecognized fields so the rest
// of the pipeline never has to deal with empty enums.
func (c *IntentClassification) Normalize() {
	if c.Domain == "" {
		c.Domain = "unknown"
	}
	if !c.Mode.Valid() {
		c.Mode = ModeSequential
	}
	switch c.Urgency {
	case UrgencyHigh, UrgencyMedium, UrgencyLow:
	default:
		c.Urgency = UrgencyMedium
	}
}
