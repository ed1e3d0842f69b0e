// Package invoker performs single bounded calls to agent endpoints. The HTTP
// implementation posts a JSON AgentRequest to the agent's execute endpoint,
// enforces the descriptor's declared timeout, and maps failures into the
// transport/timeout error taxonomy so the retry layer can tell a flaky
// network from an agent that deliberately said no.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// executePath is appended to an agent's endpoint for invocations.
const executePath = "/execute"

// HTTP is a core.Invoker calling remote agents over HTTP.
type HTTP struct {
	client *http.Client
	logger logging.Logger
}

// Options configures an HTTP invoker.
type Options struct {
	// Client is the underlying HTTP client. Per-call timeouts come from the
	// agent descriptor via context, so the client itself carries none.
	Client *http.Client
	Logger logging.Logger
}

// NewHTTP constructs an HTTP invoker.
func NewHTTP(optFns ...func(o *Options)) *HTTP {
	opts := Options{Client: &http.Client{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &HTTP{client: opts.Client, logger: logging.OrNoOp(opts.Logger)}
}

// Invoke posts the request to the agent's execute endpoint and decodes the
// structured result. The call is bounded by the descriptor's timeout.
func (h *HTTP) Invoke(ctx context.Context, d *core.AgentDescriptor, req core.AgentRequest) (*core.AgentResult, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &core.TransportError{Agent: d.Name, Cause: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(d.Endpoint, "/")+executePath, bytes.NewReader(body))
	if err != nil {
		return nil, &core.TransportError{Agent: d.Name, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &core.TimeoutError{Agent: d.Name, Timeout: timeout}
		}
		return nil, &core.TransportError{Agent: d.Name, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.TransportError{Agent: d.Name, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var result core.AgentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &core.TransportError{Agent: d.Name, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return &result, nil
}

// CheckHealth probes the agent's health endpoint, satisfying
// registry.Prober. Any 2xx within the descriptor timeout counts as healthy.
func (h *HTTP) CheckHealth(ctx context.Context, d *core.AgentDescriptor) bool {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthPath := d.HealthEndpoint
	if healthPath == "" {
		healthPath = "/health"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(d.Endpoint, "/")+healthPath, nil)
	if err != nil {
		return false
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("health probe failed", "agent", d.Name, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}
