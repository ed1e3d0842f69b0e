// Package classifier is the boundary to the external intent classification
// service. It prompts a reasoning model with the inbound message, the known
// domains/capabilities and recent session context, and parses the model's
// JSON answer into a structured IntentClassification. Model access is
// pluggable via the Backend interface; Anthropic and OpenAI adapters are
// provided.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// Backend is a minimal completion interface over a reasoning model: one
// system prompt, one user message, one text answer.
type Backend interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client implements core.Classifier over a Backend. Every call is bounded by
// the configured timeout; transport failures are reported as *UpstreamError
// and malformed answers as *ClassificationError so the router can degrade to
// the default classification instead of failing the request.
type Client struct {
	backend  Backend
	registry core.Registry
	timeout  time.Duration
	logger   logging.Logger
}

// Options configures a classifier Client.
type Options struct {
	// Timeout bounds one classification call. Defaults to 10s.
	Timeout time.Duration
	// Registry supplies the available domains, capabilities and agent
	// descriptions for the prompt; optional.
	Registry core.Registry
	Logger   logging.Logger
}

// New constructs a classifier Client over a backend.
func New(backend Backend, optFns ...func(o *Options)) *Client {
	opts := Options{Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		backend:  backend,
		registry: opts.Registry,
		timeout:  opts.Timeout,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Classify analyzes one message and returns a structured classification.
func (c *Client) Classify(ctx context.Context, message string, recent *core.SessionContext) (*core.IntentClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.backend.Complete(ctx, c.systemPrompt(recent), message)
	if err != nil {
		return nil, &core.UpstreamError{Cause: err}
	}

	classification, err := parseClassification(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Info("intent classified",
		"domain", classification.Domain,
		"intent", classification.Intent,
		"capabilities", classification.RequiredCapabilities,
		"urgency", string(classification.Urgency),
		"multi_agent", classification.MultiAgent,
		"execution_mode", string(classification.Mode),
	)
	return classification, nil
}

// systemPrompt renders the classification instructions, enriched with the
// current registry inventory and a short digest of recent session context.
func (c *Client) systemPrompt(recent *core.SessionContext) string {
	var b strings.Builder

	b.WriteString(`You are an operations routing assistant. Analyze the incoming request and classify it precisely.

Return only JSON with this structure:
{
  "domain": "one of the available domains",
  "intent": "brief description of what the user wants",
  "required_capabilities": ["capability1", "capability2"],
  "urgency": "high|medium|low",
  "multi_agent": true|false,
  "execution_mode": "sequential|parallel|conditional",
  "reasoning": "brief explanation of the routing decision"
}

Guidelines:
- urgency: "high" for time-sensitive issues, "medium" for standard requests, "low" for analytics/reporting
- multi_agent: true when multiple agents are needed to fully answer
- execution_mode:
  * "sequential" when agents must build on each other's results
  * "parallel" when agents can work independently and results are merged
  * "conditional" when later agents only make sense if earlier ones succeed
`)

	if c.registry != nil {
		b.WriteString("\nAvailable domains: ")
		b.WriteString(strings.Join(c.registry.Domains(), ", "))
		b.WriteString("\nAvailable capabilities: ")
		b.WriteString(strings.Join(c.registry.Capabilities(), ", "))
		b.WriteString("\n\nAvailable agents:\n")
		for _, d := range c.registry.All() {
			fmt.Fprintf(&b, "- %s (domain %s, capabilities %s): %s\n",
				d.Name, d.Domain, strings.Join(d.Capabilities, "/"), d.Description)
		}
	}

	if recent != nil && len(recent.AgentChain) > 0 {
		b.WriteString("\nAgents already involved in this session: ")
		b.WriteString(strings.Join(recent.AgentChain, ", "))
		b.WriteString("\n")
	}

	return b.String()
}

// parseClassification extracts and validates the JSON payload from a model
// answer, tolerating surrounding prose and markdown code fences.
func parseClassification(raw string) (*core.IntentClassification, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return nil, &core.ClassificationError{Reason: "empty model output"}
	}

	var classification core.IntentClassification
	if err := json.Unmarshal([]byte(jsonStr), &classification); err != nil {
		return nil, &core.ClassificationError{Reason: "malformed model output", Cause: err}
	}
	if classification.Domain == "" {
		return nil, &core.ClassificationError{Reason: "model output missing domain"}
	}

	classification.Normalize()
	return &classification, nil
}

// extractJSON pulls the JSON object out of a model answer: fenced blocks
// win, otherwise the outermost braces.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if idx := strings.Index(raw, "```json"); idx >= 0 {
		rest := raw[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}
