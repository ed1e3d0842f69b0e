package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// Error kinds recorded on failed outcomes.
const (
	KindCircuitOpen = "circuit_open"
	KindTimeout     = "timeout"
	KindTransport   = "transport"
	KindApplication = "application"
)

// BreakerReporter receives breaker state transitions, typically a metrics
// collector exporting the breaker gauge.
type BreakerReporter interface {
	SetBreakerOpen(agent string, open bool)
}

// GuardedInvoker composes the circuit breaker check, the retry loop and the
// underlying Invoker into a single call producing a final AgentOutcome. The
// execution engine calls this for every agent regardless of execution mode.
//
// Outcome rules:
//   - breaker open: the call is skipped and recorded as a failure outcome
//     with reason "circuit_open" (zero attempts)
//   - transport/timeout errors: retried per policy, breaker failure recorded
//     per attempt
//   - application failure (well-formed success=false body): recorded
//     immediately, never retried
//   - success: breaker closed and counter zeroed
//
// The breaker is not re-checked between retry attempts: a sequence that
// opens the breaker on its own failures may still exhaust its remaining
// attempts, and a late success closes the breaker again.
type GuardedInvoker struct {
	next     core.Invoker
	board    *Board
	policy   RetryPolicy
	reporter BreakerReporter
	logger   logging.Logger

	// sleepFn is swappable in tests to avoid real backoff waits.
	sleepFn func(ctx context.Context, d time.Duration) error
}

// GuardedOptions configures a GuardedInvoker.
type GuardedOptions struct {
	Policy RetryPolicy
	// Reporter receives breaker transitions; optional.
	Reporter BreakerReporter
	Logger   logging.Logger
}

// NewGuardedInvoker wraps next with breaker and retry handling backed by
// board.
func NewGuardedInvoker(next core.Invoker, board *Board, optFns ...func(o *GuardedOptions)) *GuardedInvoker {
	opts := GuardedOptions{Policy: DefaultRetryPolicy}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &GuardedInvoker{
		next:     next,
		board:    board,
		policy:   opts.Policy.normalized(),
		reporter: opts.Reporter,
		logger:   logging.OrNoOp(opts.Logger),
		sleepFn:  sleep,
	}
}

// Board exposes the breaker board for stats and manual resets.
func (g *GuardedInvoker) Board() *Board { return g.board }

// Invoke runs the attempt sequence for one agent and always returns a final
// outcome; failures never surface as errors.
func (g *GuardedInvoker) Invoke(ctx context.Context, d *core.AgentDescriptor, req core.AgentRequest) core.AgentOutcome {
	start := time.Now()

	if !g.board.Allow(d.Name) {
		g.logger.Warn("circuit breaker open, skipping agent", "agent", d.Name)
		return core.AgentOutcome{
			Agent:     d.Name,
			Success:   false,
			Error:     "circuit breaker open",
			ErrorKind: KindCircuitOpen,
			Elapsed:   time.Since(start),
		}
	}

	maxRetries := g.policy.MaxRetries
	if d.RetryBudget > 0 {
		maxRetries = d.RetryBudget
	}

	for attempt := 1; ; attempt++ {
		result, err := g.next.Invoke(ctx, d, req)
		if err == nil {
			outcome := core.AgentOutcome{
				Agent:    d.Name,
				Success:  result.Success,
				Data:     result.Data,
				Message:  result.Message,
				Error:    result.Error,
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
			if result.Success {
				g.recordSuccess(d.Name)
			} else {
				// Structured application failure: counts against the breaker
				// but is never retried; the agent answered deliberately.
				outcome.ErrorKind = KindApplication
				g.recordFailure(d.Name)
			}
			return outcome
		}

		g.recordFailure(d.Name)
		g.logger.Warn("agent attempt failed", "agent", d.Name, "attempt", attempt, "error", err)

		if !core.Retryable(err) || attempt > maxRetries {
			return core.AgentOutcome{
				Agent:     d.Name,
				Success:   false,
				Error:     err.Error(),
				ErrorKind: errorKind(err),
				Attempts:  attempt,
				Elapsed:   time.Since(start),
			}
		}

		if sleepErr := g.sleepFn(ctx, g.policy.Backoff(attempt)); sleepErr != nil {
			// Request deadline expired mid-backoff; record as timeout-class
			// failure with whatever attempts were made.
			return core.AgentOutcome{
				Agent:     d.Name,
				Success:   false,
				Error:     (&core.TimeoutError{Agent: d.Name, Timeout: time.Since(start)}).Error(),
				ErrorKind: KindTimeout,
				Attempts:  attempt,
				Elapsed:   time.Since(start),
			}
		}
	}
}

func (g *GuardedInvoker) recordSuccess(agent string) {
	g.board.RecordSuccess(agent)
	if g.reporter != nil {
		g.reporter.SetBreakerOpen(agent, false)
	}
}

func (g *GuardedInvoker) recordFailure(agent string) {
	if g.board.RecordFailure(agent) {
		g.logger.Warn("circuit breaker opened", "agent", agent)
		if g.reporter != nil {
			g.reporter.SetBreakerOpen(agent, true)
		}
	}
}

func errorKind(err error) string {
	var timeout *core.TimeoutError
	if errors.As(err, &timeout) {
		return KindTimeout
	}
	return KindTransport
}
