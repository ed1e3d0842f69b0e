package core

import "time"

// AgentOutcome records the result of one agent's participation in a request:
// the final result or error after the retry loop, how many attempts were
// made and how long the attempt sequence took. Outcomes are ephemeral; they
// live for the duration of one request and are folded into the final
// OrchestrationResult (and, on success, into the session context).
type AgentOutcome struct {
	Agent    string         `json:"agent"`
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	// ErrorKind categorizes a failure: "circuit_open", "timeout",
	// "transport" or "application".
	ErrorKind string        `json:"error_kind,omitempty"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed"`
	// Skipped marks agents that were never invoked: conditional mode halts
	// after the first failure and records the remainder as not attempted.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// OrchestrationResult is the structured response returned to the caller for
// every request, including degraded and failed ones. The caller never sees a
// bare error for agent-local failures.
type OrchestrationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Data maps agent identity to that agent's raw result payload.
	Data                 map[string]any `json:"data"`
	AgentsUsed           []string       `json:"agents_used"`
	Intent               string         `json:"intent,omitempty"`
	Urgency              Urgency        `json:"urgency,omitempty"`
	Mode                 ExecutionMode  `json:"execution_mode,omitempty"`
	FallbackUsed         bool           `json:"fallback_used"`
	TotalAgentsAttempted int            `json:"total_agents_attempted"`
	SuccessfulAgents     int            `json:"successful_agents"`
	Errors               []string       `json:"errors,omitempty"`

	// ExecutionChain lists the agents actually invoked, in invocation order.
	// Populated for sequential and conditional mode.
	ExecutionChain []string `json:"execution_chain,omitempty"`
	// AgentsContributed lists the agents whose results were merged.
	// Populated for parallel mode.
	AgentsContributed []string `json:"agents_contributed,omitempty"`
	// NotAttempted lists agents skipped by a conditional short-circuit.
	NotAttempted []string `json:"not_attempted,omitempty"`
}
