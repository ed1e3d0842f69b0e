package registry

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
)

// Prober answers whether a single agent endpoint is currently healthy.
// The HTTP invoker implements this against the agent's health endpoint.
type Prober interface {
	CheckHealth(ctx context.Context, d *core.AgentDescriptor) bool
}

// HealthReporter receives per-agent health transitions, typically a metrics
// collector exporting a health gauge.
type HealthReporter interface {
	SetAgentHealth(agent, domain string, healthy bool)
}

// HealthChecker probes every registered agent on an interval and writes the
// results back into the registry. Probes for one cycle run concurrently so a
// slow agent does not delay the rest.
type HealthChecker struct {
	registry core.Registry
	prober   Prober
	interval time.Duration
	reporter HealthReporter
	logger   logging.Logger
}

// HealthCheckerOptions configures a HealthChecker.
type HealthCheckerOptions struct {
	// Interval between cycles. Defaults to 30s.
	Interval time.Duration
	// Reporter receives health transitions; optional.
	Reporter HealthReporter
	Logger   logging.Logger
}

// NewHealthChecker constructs a HealthChecker over a registry and prober.
func NewHealthChecker(reg core.Registry, prober Prober, optFns ...func(o *HealthCheckerOptions)) *HealthChecker {
	opts := HealthCheckerOptions{Interval: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HealthChecker{
		registry: reg,
		prober:   prober,
		interval: opts.Interval,
		reporter: opts.Reporter,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Run performs a cycle immediately and then on every interval tick until ctx
// is cancelled. Intended to be launched in its own goroutine.
func (h *HealthChecker) Run(ctx context.Context) {
	h.CheckAll(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}

// CheckAll probes every agent concurrently and updates registry health.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	agents := h.registry.All()

	var wg sync.WaitGroup
	var healthy int64
	var mu sync.Mutex

	for _, d := range agents {
		wg.Add(1)
		go func(d *core.AgentDescriptor) {
			defer wg.Done()

			ok := h.prober.CheckHealth(ctx, d)

			status := core.HealthUnhealthy
			if ok {
				status = core.HealthHealthy
			}
			if err := h.registry.SetHealth(d.Name, status); err != nil {
				h.logger.Warn("health update failed", "agent", d.Name, "error", err)
				return
			}
			if h.reporter != nil {
				h.reporter.SetAgentHealth(d.Name, d.Domain, ok)
			}
			if ok {
				mu.Lock()
				healthy++
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()

	h.logger.Info("health check cycle complete", "total", len(agents), "healthy", healthy, "unhealthy", int64(len(agents))-healthy)
}
