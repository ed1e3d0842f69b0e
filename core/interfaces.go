package core

import "context"

// Registry is the authoritative mapping of agent identity to descriptor.
// Reads vastly outnumber writes; implementations must support concurrent
// readers during a health-check cycle without blocking route requests.
type Registry interface {
	// Register adds a descriptor, failing with ErrDuplicateAgent if the
	// identity is already present.
	Register(d *AgentDescriptor) error
	// Get returns the descriptor for name or ErrAgentNotFound.
	Get(name string) (*AgentDescriptor, error)
	// ListByDomain returns all agents in a domain, independent of health.
	ListByDomain(domain string) []*AgentDescriptor
	// ListByCapability returns agents whose capability set contains tag
	// (case-insensitive exact match), independent of health.
	ListByCapability(tag string) []*AgentDescriptor
	// All returns every registered agent.
	All() []*AgentDescriptor
	// Domains lists every domain with at least one agent.
	Domains() []string
	// Capabilities lists every declared capability tag.
	Capabilities() []string
	// SetHealth updates an agent's health status. Idempotent; returns
	// ErrAgentNotFound for unknown agents.
	SetHealth(name string, status HealthStatus) error
}

// AgentRequest is the uniform input delivered to an agent endpoint.
type AgentRequest struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// AgentResult is the structured body an agent answers with. Success=false
// with a populated Error is a well-formed application failure and is not
// retried.
type AgentResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Invoker performs a single bounded call to one agent. Transport and timeout
// failures are reported as *TransportError / *TimeoutError; a decoded body
// is returned as-is, including application-level failures.
type Invoker interface {
	Invoke(ctx context.Context, d *AgentDescriptor, req AgentRequest) (*AgentResult, error)
}

// Classifier is the boundary to the external intent classification service.
// Implementations return *ClassificationError for malformed model output and
// *UpstreamError for transport failures.
type Classifier interface {
	Classify(ctx context.Context, message string, recent *SessionContext) (*IntentClassification, error)
}
