package core

import (
	"context"
	"time"
)

// ContextEntry is one agent output appended to a session after execution.
type ContextEntry struct {
	Agent     string         `json:"agent"`
	Output    map[string]any `json:"output,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionContext accumulates conversational state across the requests of one
// session: the ordered outputs of prior agents, free-form variables and the
// chain of agents invoked over the session's lifetime. It is append-only;
// entries are never rewritten, and a session disappears only through an
// explicit delete.
type SessionContext struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Entries   []ContextEntry `json:"entries"`
	Variables map[string]any `json:"variables"`
	// AgentChain is the ordered list of agent identities invoked across the
	// whole session, including repeats.
	AgentChain []string  `json:"agent_chain"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// NewSessionContext creates an empty session record.
func NewSessionContext(id string) *SessionContext {
	now := time.Now()
	return &SessionContext{
		ID:        id,
		Variables: map[string]any{},
		Created:   now,
		Updated:   now,
	}
}

// OutputsByAgent flattens the entry history into a map keyed by agent
// identity. Later entries for the same agent win.
func (s *SessionContext) OutputsByAgent() map[string]any {
	out := make(map[string]any, len(s.Entries))
	for _, e := range s.Entries {
		if e.Output != nil {
			out[e.Agent] = e.Output
		}
	}
	return out
}

// Clone returns a deep-enough copy for safe divergence: slices and the
// variables map are copied, entry payloads are shared read-only.
func (s *SessionContext) Clone() *SessionContext {
	clone := *s
	clone.Entries = make([]ContextEntry, len(s.Entries))
	copy(clone.Entries, s.Entries)
	clone.AgentChain = make([]string, len(s.AgentChain))
	copy(clone.AgentChain, s.AgentChain)
	clone.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		clone.Variables[k] = v
	}
	return &clone
}

// ContextStore reads and appends per-session context. Implementations must
// serialize appends per session identifier; sessions are independent of each
// other. A Read for an unknown session returns a fresh, implicitly new
// session rather than an error.
type ContextStore interface {
	Read(ctx context.Context, sessionID string) (*SessionContext, error)
	Append(ctx context.Context, sessionID string, entry ContextEntry) error
	MergeVariables(ctx context.Context, sessionID string, vars map[string]any) error
	Delete(ctx context.Context, sessionID string) error
}
