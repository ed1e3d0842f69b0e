// Package session provides ContextStore implementations for per-session
// conversation context: a volatile in-memory store for tests and demo
// servers and a Redis-backed store for deployments that need sessions to
// survive restarts.
package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentrouter/core"
)

// InMemoryStore is a volatile core.ContextStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Each returned session is
// cloned to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.SessionContext
}

// NewInMemoryStore constructs an empty in-memory context store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: map[string]*core.SessionContext{}}
}

// Read returns a clone of the stored session or a fresh implicitly-new one.
// The fresh session is not persisted until the first append.
func (s *InMemoryStore) Read(_ context.Context, sessionID string) (*core.SessionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess.Clone(), nil
	}
	return core.NewSessionContext(sessionID), nil
}

// Append records one agent output and extends the session's agent chain,
// creating the session lazily. Appends are serialized by the store lock.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, entry core.ContextEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(sessionID)
	sess.Entries = append(sess.Entries, entry)
	sess.AgentChain = append(sess.AgentChain, entry.Agent)
	sess.Updated = entry.Timestamp
	return nil
}

// MergeVariables merges a key/value delta into the session's variables map.
func (s *InMemoryStore) MergeVariables(_ context.Context, sessionID string, vars map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(sessionID)
	for k, v := range vars {
		sess.Variables[k] = v
	}
	return nil
}

// Delete removes the session. Deleting an unknown session is a no-op.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// getOrCreateLocked allocates and stores a new session; caller must hold the
// write lock.
func (s *InMemoryStore) getOrCreateLocked(sessionID string) *core.SessionContext {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = core.NewSessionContext(sessionID)
		s.sessions[sessionID] = sess
	}
	return sess
}
