// Package engine drives the routing pipeline for one request: read session
// context, classify intent, select agents, execute them under the classified
// strategy and aggregate the outcomes. Classification, selection and
// aggregation are single-threaded per request; parallel-mode execution fans
// out one goroutine per agent and joins before aggregation.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/invoker"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/metrics"
	"github.com/hupe1980/agentrouter/registry"
	"github.com/hupe1980/agentrouter/resilience"
	"github.com/hupe1980/agentrouter/selector"
	"github.com/hupe1980/agentrouter/session"
)

// State names the phases of the per-request pipeline. A request moves
// classifying → selecting → executing → aggregating → done, or aborts from
// selecting (no agent available).
type State string

const (
	StateClassifying State = "classifying"
	StateSelecting   State = "selecting"
	StateExecuting   State = "executing"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

// RoutingStats is the operational snapshot exposed for monitoring.
type RoutingStats struct {
	OpenCircuitBreakers []string          `json:"open_circuit_breakers"`
	AgentFailureCounts  map[string]int    `json:"agent_failure_counts"`
	LoadDistribution    map[string]uint64 `json:"load_distribution"`
}

// Config carries the engine's tuning knobs.
type Config struct {
	// RequestTimeout bounds one request end to end. On expiry, in-flight
	// agent calls are abandoned (recorded as timeout failures) and
	// aggregation proceeds with whatever outcomes exist. Default 2m.
	RequestTimeout time.Duration
	// RetryPolicy applies to every agent call; a descriptor's retry budget
	// overrides the attempt count per agent.
	RetryPolicy resilience.RetryPolicy
	// BreakerThreshold is the consecutive-failure count that opens an
	// agent's circuit breaker. Default 3.
	BreakerThreshold int
}

// DefaultConfig is a safe production baseline.
var DefaultConfig = Config{
	RequestTimeout:   2 * time.Minute,
	RetryPolicy:      resilience.DefaultRetryPolicy,
	BreakerThreshold: resilience.DefaultBreakerThreshold,
}

// Options configures an Engine. Unset services default to in-memory
// implementations so the engine is usable out of the box.
type Options struct {
	Config Config

	// Registry is the agent inventory. Defaults to an empty in-memory
	// registry.
	Registry core.Registry
	// ContextStore persists session context. Defaults to in-memory.
	ContextStore core.ContextStore
	// Classifier analyzes inbound messages. When nil every request gets the
	// conservative default classification.
	Classifier core.Classifier
	// Invoker performs the raw agent calls. Defaults to the HTTP invoker.
	Invoker core.Invoker
	// Similarity overrides the semantic matching function.
	Similarity selector.SimilarityFunc
	// SimilarityThreshold overrides the semantic acceptance score.
	SimilarityThreshold float64
	// Metrics receives instrumentation; optional.
	Metrics *metrics.Collector
	Logger  logging.Logger
}

// Engine owns the process-wide routing state (circuit breakers, load
// balancing cursors) and executes the pipeline per request. It is safe for
// concurrent use.
type Engine struct {
	config     Config
	registry   core.Registry
	store      core.ContextStore
	classifier core.Classifier
	guarded    *resilience.GuardedInvoker
	selector   *selector.Selector
	breakers   *resilience.Board
	metrics    *metrics.Collector
	logger     logging.Logger
}

// New creates an Engine with sensible defaults and optional configuration.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{Config: DefaultConfig}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.RequestTimeout <= 0 {
		opts.Config.RequestTimeout = DefaultConfig.RequestTimeout
	}
	if opts.Registry == nil {
		opts.Registry = registry.NewInMemory()
	}
	if opts.ContextStore == nil {
		opts.ContextStore = session.NewInMemoryStore()
	}
	if opts.Invoker == nil {
		opts.Invoker = invoker.NewHTTP()
	}

	logger := logging.OrNoOp(opts.Logger)
	board := resilience.NewBoard(opts.Config.BreakerThreshold)

	guarded := resilience.NewGuardedInvoker(opts.Invoker, board, func(o *resilience.GuardedOptions) {
		o.Policy = opts.Config.RetryPolicy
		o.Logger = logger
		if opts.Metrics != nil {
			o.Reporter = opts.Metrics
		}
	})

	sel := selector.New(opts.Registry, func(o *selector.Options) {
		o.Gate = board
		o.Similarity = opts.Similarity
		o.Threshold = opts.SimilarityThreshold
		o.Logger = logger
	})

	return &Engine{
		config:     opts.Config,
		registry:   opts.Registry,
		store:      opts.ContextStore,
		classifier: opts.Classifier,
		guarded:    guarded,
		selector:   sel,
		breakers:   board,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Registry exposes the agent inventory.
func (e *Engine) Registry() core.Registry { return e.registry }

// ContextStore exposes the session context store.
func (e *Engine) ContextStore() core.ContextStore { return e.store }

// RouteRequest runs the full pipeline for one message and always returns a
// well-formed result; agent-local failures never surface as errors. Only a
// context-store or engine-internal fault returns an error.
func (e *Engine) RouteRequest(ctx context.Context, sessionID, userID, message string, extra map[string]any) (*core.OrchestrationResult, error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	state := StateClassifying
	e.logger.Debug("routing request", "request_id", requestID, "session_id", sessionID, "state", string(state))

	sess, err := e.store.Read(ctx, sessionID)
	if err != nil {
		// A broken context store degrades to an empty session; routing
		// continues without prior context.
		e.logger.Error("session read failed", "session_id", sessionID, "error", err)
		sess = core.NewSessionContext(sessionID)
	}
	sess.UserID = userID

	classification := e.classify(ctx, message, sess)

	state = StateSelecting
	sel, err := e.selector.Select(classification)
	if err != nil {
		if errors.Is(err, core.ErrNoAgentAvailable) {
			state = StateAborted
			e.logger.Warn("routing aborted", "request_id", requestID, "state", string(state), "error", err)
			result := abortedResult(classification)
			e.record(result, time.Since(start))
			return result, nil
		}
		return nil, err
	}

	state = StateExecuting
	e.logger.Info("executing agents",
		"request_id", requestID,
		"session_id", sessionID,
		"agents", sel.Agents,
		"execution_mode", string(classification.Mode),
		"urgency", string(classification.Urgency),
		"fallback_used", sel.FallbackUsed,
	)

	input := requestInput{
		sessionID: sessionID,
		userID:    userID,
		message:   message,
		session:   sess,
		extra:     extra,
	}

	var outcomes []core.AgentOutcome
	switch classification.Mode {
	case core.ModeParallel:
		outcomes = e.executeParallel(ctx, sel.Agents, input)
	case core.ModeConditional:
		outcomes = e.executeConditional(ctx, sel.Agents, input)
	default:
		outcomes = e.executeSequential(ctx, sel.Agents, input)
	}

	state = StateAggregating
	result := Aggregate(classification, sel.FallbackUsed, outcomes)

	e.persistOutcomes(ctx, sessionID, outcomes)

	state = StateDone
	e.logger.Debug("routing finished", "request_id", requestID, "state", string(state))
	e.record(result, time.Since(start))
	return result, nil
}

// classify delegates to the classifier and degrades to the default
// classification on any failure; classification problems must not abort the
// request.
func (e *Engine) classify(ctx context.Context, message string, sess *core.SessionContext) *core.IntentClassification {
	if e.classifier == nil {
		return core.DefaultClassification()
	}

	classification, err := e.classifier.Classify(ctx, message, sess)
	if err != nil {
		e.logger.Warn("classification failed, using default", "error", err)
		return core.DefaultClassification()
	}
	classification.Normalize()
	return classification
}

// requestInput bundles the per-request invocation inputs.
type requestInput struct {
	sessionID string
	userID    string
	message   string
	session   *core.SessionContext
	extra     map[string]any
}

// baseContext merges session variables, prior session outputs (keyed by
// agent identity) and caller-supplied context into a fresh map.
func (in requestInput) baseContext() map[string]any {
	out := map[string]any{}
	for k, v := range in.session.Variables {
		out[k] = v
	}
	for agent, output := range in.session.OutputsByAgent() {
		out[agent] = output
	}
	for k, v := range in.extra {
		out[k] = v
	}
	return out
}

// executeSequential invokes agents one at a time in selector order. Each
// agent sees every prior agent's output keyed by that agent's identity;
// failures are recorded but do not stop the chain.
func (e *Engine) executeSequential(ctx context.Context, agents []string, in requestInput) []core.AgentOutcome {
	acc := in.baseContext()

	outcomes := make([]core.AgentOutcome, 0, len(agents))
	for _, name := range agents {
		outcome := e.invokeOne(ctx, name, in, cloneContext(acc))
		outcomes = append(outcomes, outcome)

		if outcome.Success && outcome.Data != nil {
			acc[name] = outcome.Data
		}
	}
	return outcomes
}

// executeConditional is sequential execution that halts after the first
// failed outcome; the remaining agents are recorded as not attempted.
func (e *Engine) executeConditional(ctx context.Context, agents []string, in requestInput) []core.AgentOutcome {
	acc := in.baseContext()

	outcomes := make([]core.AgentOutcome, 0, len(agents))
	for i, name := range agents {
		outcome := e.invokeOne(ctx, name, in, cloneContext(acc))
		outcomes = append(outcomes, outcome)

		if !outcome.Success {
			for _, skipped := range agents[i+1:] {
				outcomes = append(outcomes, core.AgentOutcome{
					Agent:      skipped,
					Skipped:    true,
					SkipReason: "previous_agent_failed",
				})
			}
			e.logger.Info("conditional chain halted", "failed_agent", name, "skipped", len(agents)-i-1)
			break
		}
		if outcome.Data != nil {
			acc[name] = outcome.Data
		}
	}
	return outcomes
}

// executeParallel invokes all agents concurrently with identical input
// (message plus session context, no peer outputs) and joins before
// returning; a slow or failed agent never blocks collection of the others.
func (e *Engine) executeParallel(ctx context.Context, agents []string, in requestInput) []core.AgentOutcome {
	base := in.baseContext()

	outcomes := make([]core.AgentOutcome, len(agents))
	var wg sync.WaitGroup
	for i, name := range agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = e.invokeOne(ctx, name, in, cloneContext(base))
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

// invokeOne resolves the descriptor and runs the guarded (breaker + retry)
// invocation, recording instrumentation.
func (e *Engine) invokeOne(ctx context.Context, name string, in requestInput, callCtx map[string]any) core.AgentOutcome {
	d, err := e.registry.Get(name)
	if err != nil {
		return core.AgentOutcome{
			Agent:     name,
			Success:   false,
			Error:     err.Error(),
			ErrorKind: resilience.KindApplication,
		}
	}

	req := core.AgentRequest{
		SessionID: in.sessionID,
		UserID:    in.userID,
		Message:   in.message,
		Context:   callCtx,
	}

	outcome := e.guarded.Invoke(ctx, d, req)

	if e.metrics != nil {
		e.metrics.RecordAgentCall(name, outcome.Success, outcome.Elapsed)
		if !outcome.Success {
			e.metrics.RecordAgentFailure(name, outcome.ErrorKind)
		}
	}
	e.logger.Info("agent invocation finished",
		"agent", name,
		"success", outcome.Success,
		"attempts", outcome.Attempts,
		"elapsed", outcome.Elapsed,
	)
	return outcome
}

// persistOutcomes appends every attempted outcome to the session: the agent
// chain records each invocation, successful outputs become context for
// future requests. Store failures are logged, not fatal.
func (e *Engine) persistOutcomes(ctx context.Context, sessionID string, outcomes []core.AgentOutcome) {
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		entry := core.ContextEntry{
			Agent:     o.Agent,
			Message:   o.Message,
			Timestamp: time.Now(),
		}
		if o.Success {
			entry.Output = o.Data
		}
		if err := e.store.Append(ctx, sessionID, entry); err != nil {
			e.logger.Error("context append failed", "session_id", sessionID, "agent", o.Agent, "error", err)
		}
	}
}

func (e *Engine) record(result *core.OrchestrationResult, dur time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordRequest(string(result.Mode), result.Success, dur)
	if result.FallbackUsed {
		e.metrics.RecordFallback()
	}
}

// RoutingStats reports open breakers, per-agent failure counts and the load
// distribution of the balancer.
func (e *Engine) RoutingStats() RoutingStats {
	snap := e.breakers.Snapshot()
	return RoutingStats{
		OpenCircuitBreakers: snap.Open,
		AgentFailureCounts:  snap.FailureCounts,
		LoadDistribution:    e.selector.Balancer().Distribution(),
	}
}

// ResetCircuitBreaker manually closes the breaker for one agent.
func (e *Engine) ResetCircuitBreaker(agent string) {
	e.breakers.Reset(agent)
	e.logger.Info("circuit breaker reset", "agent", agent)
}

// ResetAllCircuitBreakers closes every breaker.
func (e *Engine) ResetAllCircuitBreakers() {
	e.breakers.ResetAll()
	e.logger.Info("all circuit breakers reset")
}

// DeleteSession removes all context for a session.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.store.Delete(ctx, sessionID)
}

func cloneContext(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
