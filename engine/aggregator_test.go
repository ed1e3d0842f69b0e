package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/agentrouter/core"
)

func sequentialClassification() *core.IntentClassification {
	return &core.IntentClassification{
		Domain:  "payments",
		Intent:  "process payment",
		Urgency: core.UrgencyHigh,
		Mode:    core.ModeSequential,
	}
}

func TestAggregate_SequentialChainNarrative(t *testing.T) {
	outcomes := []core.AgentOutcome{
		{Agent: "validator", Success: true, Message: "validated"},
		{Agent: "executor", Success: true, Message: "executed"},
	}

	result := Aggregate(sequentialClassification(), false, outcomes)
	assert.True(t, result.Success)
	assert.Equal(t, "validator: validated → executor: executed", result.Message)
	assert.Equal(t, []string{"validator", "executor"}, result.ExecutionChain)
	assert.Equal(t, []string{"validator", "executor"}, result.AgentsUsed)
	assert.Equal(t, 2, result.SuccessfulAgents)
	assert.Equal(t, core.UrgencyHigh, result.Urgency)
}

func TestAggregate_SequentialPartialFailure(t *testing.T) {
	outcomes := []core.AgentOutcome{
		{Agent: "validator", Success: false, Error: "limit exceeded"},
		{Agent: "executor", Success: true, Message: "executed"},
	}

	result := Aggregate(sequentialClassification(), false, outcomes)
	assert.True(t, result.Success)
	assert.Equal(t, "validator: failed (limit exceeded) → executor: executed", result.Message)
	assert.Equal(t, []string{"validator", "executor"}, result.ExecutionChain, "failed agents stay in the chain")
	assert.Equal(t, []string{"executor"}, result.AgentsUsed)
	assert.Equal(t, []string{"validator: limit exceeded"}, result.Errors)
}

func TestAggregate_ParallelBullets(t *testing.T) {
	c := sequentialClassification()
	c.Mode = core.ModeParallel

	outcomes := []core.AgentOutcome{
		{Agent: "weather", Success: true, Message: "sunny"},
		{Agent: "traffic", Success: true, Message: "clear"},
	}

	result := Aggregate(c, false, outcomes)
	assert.True(t, result.Success)
	assert.Equal(t, "Combined results:\n• weather: sunny\n• traffic: clear", result.Message)
	assert.Equal(t, []string{"weather", "traffic"}, result.AgentsContributed)
	assert.Empty(t, result.ExecutionChain)
}

func TestAggregate_DataKeyedByAgent(t *testing.T) {
	c := sequentialClassification()
	c.Mode = core.ModeParallel

	outcomes := []core.AgentOutcome{
		{Agent: "a", Success: true, Data: map[string]any{"x": 1}},
		{Agent: "b", Success: true, Data: map[string]any{"y": 2}},
		{Agent: "c", Success: false, Data: map[string]any{"z": 3}},
	}

	result := Aggregate(c, false, outcomes)
	assert.Equal(t, map[string]any{"x": 1}, result.Data["a"])
	assert.Equal(t, map[string]any{"y": 2}, result.Data["b"])
	assert.NotContains(t, result.Data, "c", "failed agents contribute no data")
}

func TestAggregate_AllFailed(t *testing.T) {
	outcomes := []core.AgentOutcome{
		{Agent: "validator", Success: false, Error: "down"},
		{Agent: "executor", Success: false, Error: "down"},
	}

	result := Aggregate(sequentialClassification(), false, outcomes)
	assert.False(t, result.Success)
	assert.Equal(t, "All agents failed to process request", result.Message)
	assert.Len(t, result.Errors, 2)
	assert.Empty(t, result.AgentsUsed)
}

func TestAggregate_NoOutcomes(t *testing.T) {
	result := Aggregate(sequentialClassification(), true, nil)
	assert.False(t, result.Success)
	assert.Equal(t, "No agents available to handle this request", result.Message)
	assert.True(t, result.FallbackUsed)
}

func TestAggregate_SkippedAgents(t *testing.T) {
	c := sequentialClassification()
	c.Mode = core.ModeConditional

	outcomes := []core.AgentOutcome{
		{Agent: "validator", Success: false, Error: "limit exceeded"},
		{Agent: "executor", Skipped: true, SkipReason: "previous_agent_failed"},
	}

	result := Aggregate(c, false, outcomes)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"validator"}, result.ExecutionChain)
	assert.Equal(t, []string{"executor"}, result.NotAttempted)
	assert.Equal(t, 1, result.TotalAgentsAttempted)
	assert.NotContains(t, result.Message, "executor", "skipped agents stay out of the narrative")
}

func TestAggregate_SuccessWithoutMessage(t *testing.T) {
	outcomes := []core.AgentOutcome{{Agent: "quiet", Success: true}}
	result := Aggregate(sequentialClassification(), false, outcomes)
	assert.Equal(t, "quiet: completed", result.Message)
}
