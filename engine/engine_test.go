package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/registry"
	"github.com/hupe1980/agentrouter/resilience"
	"github.com/hupe1980/agentrouter/session"
)

// fakeInvoker answers invocations from a per-agent script and records every
// request it receives.
type fakeInvoker struct {
	mu       sync.Mutex
	results  map[string]*core.AgentResult
	errs     map[string]error
	requests map[string][]core.AgentRequest
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		results:  map[string]*core.AgentResult{},
		errs:     map[string]error{},
		requests: map[string][]core.AgentRequest{},
	}
}

func (f *fakeInvoker) respond(agent string, r *core.AgentResult) { f.results[agent] = r }
func (f *fakeInvoker) fail(agent string, err error)              { f.errs[agent] = err }

func (f *fakeInvoker) Invoke(_ context.Context, d *core.AgentDescriptor, req core.AgentRequest) (*core.AgentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[d.Name] = append(f.requests[d.Name], req)
	if err, ok := f.errs[d.Name]; ok {
		return nil, err
	}
	if r, ok := f.results[d.Name]; ok {
		return r, nil
	}
	return &core.AgentResult{Success: true, Message: d.Name + " done"}, nil
}

func (f *fakeInvoker) requestsFor(agent string) []core.AgentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[agent]
}

// slowInvoker delays configured agents before answering and records the
// order in which invocations complete.
type slowInvoker struct {
	*fakeInvoker
	delays map[string]time.Duration

	orderMu sync.Mutex
	order   []string
}

func (s *slowInvoker) Invoke(ctx context.Context, d *core.AgentDescriptor, req core.AgentRequest) (*core.AgentResult, error) {
	if delay := s.delays[d.Name]; delay > 0 {
		time.Sleep(delay)
	}
	s.orderMu.Lock()
	s.order = append(s.order, d.Name)
	s.orderMu.Unlock()
	return s.fakeInvoker.Invoke(ctx, d, req)
}

func (s *slowInvoker) completionOrder() []string {
	s.orderMu.Lock()
	defer s.orderMu.Unlock()
	return append([]string(nil), s.order...)
}

// fixedClassifier returns the same classification for every message.
type fixedClassifier struct {
	classification *core.IntentClassification
	err            error
}

func (c *fixedClassifier) Classify(context.Context, string, *core.SessionContext) (*core.IntentClassification, error) {
	if c.err != nil {
		return nil, c.err
	}
	clone := *c.classification
	return &clone, nil
}

func paymentClassification(mode core.ExecutionMode, caps ...string) *fixedClassifier {
	return &fixedClassifier{classification: &core.IntentClassification{
		Domain:               "payments",
		Intent:               "process a payment",
		RequiredCapabilities: caps,
		Urgency:              core.UrgencyHigh,
		MultiAgent:           len(caps) > 1,
		Mode:                 mode,
	}}
}

func paymentRegistry(t *testing.T) core.Registry {
	t.Helper()
	reg := registry.NewInMemory()
	agents := []*core.AgentDescriptor{
		{Name: "validator", Domain: "payments", Capabilities: []string{"payment_validation"}, Endpoint: "http://validator"},
		{Name: "executor", Domain: "payments", Capabilities: []string{"payment_execution"}, Endpoint: "http://executor"},
		{Name: "notifier", Domain: "payments", Capabilities: []string{"notification"}, Endpoint: "http://notifier"},
	}
	for _, d := range agents {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

func newTestEngine(t *testing.T, reg core.Registry, cls core.Classifier, inv core.Invoker) (*Engine, *session.InMemoryStore) {
	t.Helper()
	store := session.NewInMemoryStore()
	e := New(func(o *Options) {
		o.Registry = reg
		o.ContextStore = store
		o.Classifier = cls
		o.Invoker = inv
	})
	return e, store
}

func TestEngine_Sequential_ContextPropagation(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{
		Success: true,
		Message: "validated",
		Data:    map[string]any{"validation_id": "val-1"},
	})
	inv.respond("executor", &core.AgentResult{
		Success: true,
		Message: "executed",
		Data:    map[string]any{"txn_id": "txn-9"},
	})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation", "payment_execution"), inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay invoice 42", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"validator", "executor"}, result.ExecutionChain)
	assert.Equal(t, 2, result.SuccessfulAgents)

	// The second agent sees the first agent's output keyed by its identity.
	execReqs := inv.requestsFor("executor")
	require.Len(t, execReqs, 1)
	got, ok := execReqs[0].Context["validator"].(map[string]any)
	require.True(t, ok, "executor should receive validator output, got %+v", execReqs[0].Context)
	assert.Equal(t, "val-1", got["validation_id"])

	// The first agent must not see any peer output.
	valReqs := inv.requestsFor("validator")
	require.Len(t, valReqs, 1)
	assert.NotContains(t, valReqs[0].Context, "executor")

	// Aggregated data is keyed by agent identity.
	assert.Equal(t, map[string]any{"validation_id": "val-1"}, result.Data["validator"])
	assert.Equal(t, map[string]any{"txn_id": "txn-9"}, result.Data["executor"])
}

func TestEngine_Sequential_ContinuesPastFailure(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{Success: false, Error: "limit exceeded"})
	inv.respond("executor", &core.AgentResult{Success: true, Message: "executed"})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation", "payment_execution"), inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	assert.True(t, result.Success, "one success is enough for partial success")
	assert.Equal(t, []string{"validator", "executor"}, result.ExecutionChain)
	assert.Equal(t, 1, result.SuccessfulAgents)
	assert.Equal(t, 2, result.TotalAgentsAttempted)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "validator")

	// The failed agent contributes no context downstream.
	execReqs := inv.requestsFor("executor")
	require.Len(t, execReqs, 1)
	assert.NotContains(t, execReqs[0].Context, "validator")
}

func TestEngine_Conditional_HaltsOnFailure(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{Success: false, Error: "limit exceeded"})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeConditional, "payment_validation", "payment_execution", "notification"), inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "All agents failed to process request", result.Message)
	assert.Equal(t, []string{"validator"}, result.ExecutionChain)
	assert.Equal(t, []string{"executor", "notifier"}, result.NotAttempted)
	assert.Equal(t, 1, result.TotalAgentsAttempted)

	assert.Empty(t, inv.requestsFor("executor"), "halted agents must not be invoked")
	assert.Empty(t, inv.requestsFor("notifier"))
}

func TestEngine_Conditional_AllSucceed(t *testing.T) {
	inv := newFakeInvoker()
	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeConditional, "payment_validation", "payment_execution"), inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"validator", "executor"}, result.ExecutionChain)
	assert.Empty(t, result.NotAttempted)
}

func TestEngine_Parallel_AllInvoked(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{Success: true, Message: "ok", Data: map[string]any{"a": 1}})
	inv.respond("executor", &core.AgentResult{Success: true, Message: "ok", Data: map[string]any{"b": 2}})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeParallel, "payment_validation", "payment_execution"), inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.ElementsMatch(t, []string{"validator", "executor"}, result.AgentsContributed)
	assert.Empty(t, result.ExecutionChain, "parallel mode reports contributors, not a chain")
	assert.Contains(t, result.Message, "Combined results:")
	assert.Equal(t, map[string]any{"a": 1}, result.Data["validator"])
	assert.Equal(t, map[string]any{"b": 2}, result.Data["executor"])

	// Parallel agents all receive the same base input, no peer outputs.
	for _, agent := range []string{"validator", "executor"} {
		reqs := inv.requestsFor(agent)
		require.Len(t, reqs, 1)
		assert.NotContains(t, reqs[0].Context, "validator")
		assert.NotContains(t, reqs[0].Context, "executor")
	}
}

func TestEngine_Parallel_SlowAgentJoined(t *testing.T) {
	const delay = 150 * time.Millisecond
	inv := &slowInvoker{
		fakeInvoker: newFakeInvoker(),
		delays:      map[string]time.Duration{"validator": delay},
	}
	inv.respond("validator", &core.AgentResult{Success: true, Message: "slow but done", Data: map[string]any{"a": 1}})
	inv.respond("executor", &core.AgentResult{Success: true, Message: "fast", Data: map[string]any{"b": 2}})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeParallel, "payment_validation", "payment_execution"), inv)

	start := time.Now()
	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	// The fast agent finished first; the join still collected both outcomes.
	assert.Equal(t, []string{"executor", "validator"}, inv.completionOrder())
	assert.GreaterOrEqual(t, elapsed, delay, "aggregation must wait for the slow agent")

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SuccessfulAgents)
	assert.ElementsMatch(t, []string{"validator", "executor"}, result.AgentsContributed)
	assert.Equal(t, map[string]any{"a": 1}, result.Data["validator"])
	assert.Equal(t, map[string]any{"b": 2}, result.Data["executor"])
}

func TestEngine_Parallel_PartialFailure(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{Success: true, Message: "ok"})
	inv.respond("executor", &core.AgentResult{Success: false, Error: "boom"})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeParallel, "payment_validation", "payment_execution"), inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"validator"}, result.AgentsContributed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "executor")
}

func TestEngine_NoAgentAvailable(t *testing.T) {
	e, _ := newTestEngine(t, registry.NewInMemory(),
		paymentClassification(core.ModeSequential, "payment_validation"), newFakeInvoker())

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err, "an empty selection is a structured result, not an error")
	assert.False(t, result.Success)
	assert.Equal(t, "No agents available to handle this request", result.Message)
	assert.True(t, result.FallbackUsed)
	assert.Zero(t, result.TotalAgentsAttempted)
}

func TestEngine_ClassifierFailureFallsBackToDefault(t *testing.T) {
	inv := newFakeInvoker()
	cls := &fixedClassifier{err: &core.UpstreamError{Cause: errors.New("api down")}}

	e, _ := newTestEngine(t, paymentRegistry(t), cls, inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "do something", nil)
	require.NoError(t, err)
	assert.True(t, result.Success, "classifier outage degrades, it does not fail the request")
	assert.Equal(t, core.ModeSequential, result.Mode)
	assert.True(t, result.FallbackUsed)
	assert.Len(t, result.AgentsUsed, 1)
}

func TestEngine_NilClassifierUsesDefault(t *testing.T) {
	inv := newFakeInvoker()
	e, _ := newTestEngine(t, paymentRegistry(t), nil, inv)

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "hello", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, core.ModeSequential, result.Mode)
}

func TestEngine_SessionBookkeeping(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{Success: true, Data: map[string]any{"validation_id": "val-1"}})
	inv.respond("executor", &core.AgentResult{Success: false, Error: "boom"})

	e, store := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation", "payment_execution"), inv)

	_, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)

	sess, err := store.Read(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"validator", "executor"}, sess.AgentChain, "every attempted agent joins the chain")

	outputs := sess.OutputsByAgent()
	assert.Contains(t, outputs, "validator")
	assert.NotContains(t, outputs, "executor", "failed agents persist no output")
}

func TestEngine_SessionContextFeedsNextRequest(t *testing.T) {
	inv := newFakeInvoker()
	inv.respond("validator", &core.AgentResult{Success: true, Data: map[string]any{"validation_id": "val-1"}})

	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation"), inv)

	_, err := e.RouteRequest(context.Background(), "s1", "u1", "validate", nil)
	require.NoError(t, err)

	// Second request on the same session: the validator's prior output is
	// part of the base context.
	_, err = e.RouteRequest(context.Background(), "s1", "u1", "now execute", nil)
	require.NoError(t, err)

	reqs := inv.requestsFor("validator")
	require.Len(t, reqs, 2)
	got, ok := reqs[1].Context["validator"].(map[string]any)
	require.True(t, ok, "second request should carry the session's prior outputs")
	assert.Equal(t, "val-1", got["validation_id"])
}

func TestEngine_CallerContextMerged(t *testing.T) {
	inv := newFakeInvoker()
	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation"), inv)

	_, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", map[string]any{"priority": "vip"})
	require.NoError(t, err)

	reqs := inv.requestsFor("validator")
	require.Len(t, reqs, 1)
	assert.Equal(t, "vip", reqs[0].Context["priority"])
	assert.Equal(t, "s1", reqs[0].SessionID)
	assert.Equal(t, "u1", reqs[0].UserID)
	assert.Equal(t, "pay", reqs[0].Message)
}

func TestEngine_TransportFailureOpensBreaker(t *testing.T) {
	inv := newFakeInvoker()
	inv.fail("validator", &core.TransportError{Agent: "validator", Cause: errors.New("conn refused")})

	reg := paymentRegistry(t)
	store := session.NewInMemoryStore()
	e := New(func(o *Options) {
		o.Registry = reg
		o.ContextStore = store
		o.Classifier = paymentClassification(core.ModeSequential, "payment_validation")
		o.Invoker = inv
		o.Config = Config{
			// Millisecond backoff keeps the retry sequence fast in tests.
			RetryPolicy:      resilience.RetryPolicy{MaxRetries: 3, Base: time.Millisecond},
			BreakerThreshold: 3,
		}
	})

	result, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)

	stats := e.RoutingStats()
	assert.Contains(t, stats.OpenCircuitBreakers, "validator", "4 failed attempts exceed the threshold of 3")

	// The open breaker now excludes the agent from selection; the payments
	// domain fallback routes to a different agent.
	result2, err := e.RouteRequest(context.Background(), "s2", "u1", "pay", nil)
	require.NoError(t, err)
	assert.NotContains(t, result2.AgentsUsed, "validator")

	// Manual reset closes it again.
	e.ResetCircuitBreaker("validator")
	assert.Empty(t, e.RoutingStats().OpenCircuitBreakers)
}

func TestEngine_RoutingStats(t *testing.T) {
	inv := newFakeInvoker()
	e, _ := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation"), inv)

	_, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)

	stats := e.RoutingStats()
	assert.Empty(t, stats.OpenCircuitBreakers)
	assert.Empty(t, stats.AgentFailureCounts)
	assert.Equal(t, uint64(1), stats.LoadDistribution["validator"])
}

func TestEngine_DeleteSession(t *testing.T) {
	inv := newFakeInvoker()
	e, store := newTestEngine(t, paymentRegistry(t),
		paymentClassification(core.ModeSequential, "payment_validation"), inv)

	_, err := e.RouteRequest(context.Background(), "s1", "u1", "pay", nil)
	require.NoError(t, err)
	require.NoError(t, e.DeleteSession(context.Background(), "s1"))

	sess, err := store.Read(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, sess.Entries)
}
