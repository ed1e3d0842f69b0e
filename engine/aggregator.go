package engine

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentrouter/core"
)

// Aggregate folds the per-agent outcomes of one request into the final
// OrchestrationResult. The request succeeds when at least one agent
// succeeded; partial failure keeps the successful data and lists the errors.
// Data maps agent identity to that agent's raw payload.
func Aggregate(c *core.IntentClassification, fallbackUsed bool, outcomes []core.AgentOutcome) *core.OrchestrationResult {
	result := &core.OrchestrationResult{
		Data:         map[string]any{},
		Intent:       c.Intent,
		Urgency:      c.Urgency,
		Mode:         c.Mode,
		FallbackUsed: fallbackUsed,
	}

	for _, o := range outcomes {
		if o.Skipped {
			result.NotAttempted = append(result.NotAttempted, o.Agent)
			continue
		}
		result.TotalAgentsAttempted++
		result.ExecutionChain = append(result.ExecutionChain, o.Agent)
		if o.Success {
			result.SuccessfulAgents++
			result.AgentsUsed = append(result.AgentsUsed, o.Agent)
			result.Data[o.Agent] = o.Data
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", o.Agent, o.Error))
		}
	}

	result.Success = result.SuccessfulAgents > 0

	switch c.Mode {
	case core.ModeParallel:
		result.AgentsContributed = append([]string(nil), result.AgentsUsed...)
		result.ExecutionChain = nil
		result.Message = parallelMessage(outcomes)
	default:
		result.Message = chainMessage(outcomes)
	}

	if !result.Success {
		if result.TotalAgentsAttempted == 0 {
			result.Message = "No agents available to handle this request"
		} else {
			result.Message = "All agents failed to process request"
		}
	}
	return result
}

// chainMessage narrates a sequential or conditional run as an ordered chain
// of per-agent summaries.
func chainMessage(outcomes []core.AgentOutcome) string {
	var parts []string
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", o.Agent, outcomeSummary(o)))
	}
	return strings.Join(parts, " → ")
}

// parallelMessage lists every agent's contribution as a bullet per agent.
func parallelMessage(outcomes []core.AgentOutcome) string {
	var b strings.Builder
	b.WriteString("Combined results:")
	for _, o := range outcomes {
		b.WriteString(fmt.Sprintf("\n• %s: %s", o.Agent, outcomeSummary(o)))
	}
	return b.String()
}

func outcomeSummary(o core.AgentOutcome) string {
	if o.Success {
		if o.Message != "" {
			return o.Message
		}
		return "completed"
	}
	if o.Error != "" {
		return "failed (" + o.Error + ")"
	}
	return "failed"
}

// abortedResult is the structured failure returned when selection found no
// agent at all; the caller still receives a well-formed response.
func abortedResult(c *core.IntentClassification) *core.OrchestrationResult {
	return &core.OrchestrationResult{
		Success:      false,
		Message:      "No agents available to handle this request",
		Data:         map[string]any{},
		Intent:       c.Intent,
		Urgency:      c.Urgency,
		Mode:         c.Mode,
		FallbackUsed: true,
	}
}
