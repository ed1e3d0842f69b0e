// Package agentrouter provides a high-level façade over the routing Engine
// and its service abstractions (registry, sessions, classification,
// invocation & logging) enabling rapid construction of intent-driven agent
// routers. Most applications interact with this package by:
//  1. Creating a Router via New() (optionally overriding default in-memory services)
//  2. Registering one or more agent descriptors (or loading a YAML manifest)
//  3. Routing user messages with RouteRequest
//
// The façade delegates orchestration to engine.Engine while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a Redis-backed
// context store, an LLM classification backend and a structured logger.
package agentrouter

import (
	"context"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/engine"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/metrics"
	"github.com/hupe1980/agentrouter/registry"
	"github.com/hupe1980/agentrouter/selector"
	"github.com/hupe1980/agentrouter/session"
)

// Options configures the Router instance.
type Options struct {
	// Engine configuration (request timeout, retry policy, breaker threshold)
	EngineConfig engine.Config

	// Services (default to in-memory implementations if not provided)
	Registry     core.Registry
	ContextStore core.ContextStore

	// Classifier analyzes inbound messages; when nil every request uses the
	// conservative default classification (sequential, unknown domain).
	Classifier core.Classifier

	// Invoker performs the agent calls. Defaults to the HTTP invoker.
	Invoker core.Invoker

	// Similarity and SimilarityThreshold tune semantic capability matching.
	Similarity          selector.SimilarityFunc
	SimilarityThreshold float64

	// Metrics receives Prometheus instrumentation; optional.
	Metrics *metrics.Collector

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Router is the high-level façade aggregating the underlying engine and
// services.
type Router struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Router instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Router {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Registry:     registry.NewInMemory(),
		ContextStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Registry = opts.Registry
		o.ContextStore = opts.ContextStore
		o.Classifier = opts.Classifier
		o.Invoker = opts.Invoker
		o.Similarity = opts.Similarity
		o.SimilarityThreshold = opts.SimilarityThreshold
		o.Metrics = opts.Metrics
		o.Logger = opts.Logger
	})

	return &Router{opts: opts, engine: e}
}

// Engine exposes the underlying engine, e.g. for mounting the HTTP API.
func (r *Router) Engine() *engine.Engine { return r.engine }

// RegisterAgent adds an agent descriptor to the registry.
func (r *Router) RegisterAgent(d *core.AgentDescriptor) error {
	return r.engine.Registry().Register(d)
}

// LoadManifest registers every agent declared in the YAML manifest at path.
func (r *Router) LoadManifest(path string) error {
	return registry.LoadManifest(path, r.engine.Registry())
}

// RouteRequest classifies the message, selects and executes agents, and
// returns the aggregated result. Agent-local failures are reported inside
// the result, never as an error.
func (r *Router) RouteRequest(ctx context.Context, sessionID, userID, message string, extra map[string]any) (*core.OrchestrationResult, error) {
	return r.engine.RouteRequest(ctx, sessionID, userID, message, extra)
}

// Session returns the current context for a session; unknown sessions yield
// an empty context.
func (r *Router) Session(ctx context.Context, sessionID string) (*core.SessionContext, error) {
	return r.engine.ContextStore().Read(ctx, sessionID)
}

// DeleteSession removes all context for a session.
func (r *Router) DeleteSession(ctx context.Context, sessionID string) error {
	return r.engine.DeleteSession(ctx, sessionID)
}

// RoutingStats reports open circuit breakers, failure counts and load
// distribution.
func (r *Router) RoutingStats() engine.RoutingStats { return r.engine.RoutingStats() }

// ResetCircuitBreaker manually closes the breaker for one agent.
func (r *Router) ResetCircuitBreaker(agent string) { r.engine.ResetCircuitBreaker(agent) }

// ResetAllCircuitBreakers closes every breaker.
func (r *Router) ResetAllCircuitBreakers() { r.engine.ResetAllCircuitBreakers() }
