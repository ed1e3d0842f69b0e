// Package metrics exports the router's Prometheus instrumentation: request
// and agent call counters/durations, circuit breaker state and per-agent
// health gauges. The collector owns a dedicated registry so embedding
// applications keep full control over what they expose.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every router metric behind typed record methods.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	agentRequests *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	agentFailures *prometheus.CounterVec

	breakerState  *prometheus.GaugeVec
	breakerOpens  *prometheus.CounterVec
	agentHealth   *prometheus.GaugeVec
	fallbackTotal prometheus.Counter
}

// NewCollector constructs a Collector with its own Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_requests_total",
			Help: "Total number of requests routed by the orchestrator",
		}, []string{"execution_mode", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_request_duration_seconds",
			Help:    "End-to-end routing duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"execution_mode"}),
		agentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_requests_total",
			Help: "Total number of agent invocations",
		}, []string{"agent_name", "status"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_request_duration_seconds",
			Help:    "Agent invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_name"}),
		agentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_failures_total",
			Help: "Total number of agent failures by error type",
		}, []string{"agent_name", "error_type"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open)",
		}, []string{"agent_name"}),
		breakerOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_opens_total",
			Help: "Total number of circuit breaker open transitions",
		}, []string{"agent_name"}),
		agentHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_health_status",
			Help: "Agent health status (1=healthy, 0=unhealthy)",
		}, []string{"agent_name", "domain"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "selection_fallback_total",
			Help: "Total number of requests that engaged fallback routing",
		}),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.agentRequests,
		c.agentDuration,
		c.agentFailures,
		c.breakerState,
		c.breakerOpens,
		c.agentHealth,
		c.fallbackTotal,
	)
	return c
}

// Handler serves the collector's registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one routed request and its end-to-end duration.
func (c *Collector) RecordRequest(mode string, success bool, dur time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.requestsTotal.WithLabelValues(mode, status).Inc()
	c.requestDuration.WithLabelValues(mode).Observe(dur.Seconds())
}

// RecordAgentCall counts one agent invocation outcome and its duration.
func (c *Collector) RecordAgentCall(agent string, success bool, dur time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.agentRequests.WithLabelValues(agent, status).Inc()
	c.agentDuration.WithLabelValues(agent).Observe(dur.Seconds())
}

// RecordAgentFailure counts an agent failure by error type
// (e.g. "timeout", "transport", "application", "circuit_open").
func (c *Collector) RecordAgentFailure(agent, errorType string) {
	c.agentFailures.WithLabelValues(agent, errorType).Inc()
}

// RecordFallback counts a request that engaged fallback routing.
func (c *Collector) RecordFallback() {
	c.fallbackTotal.Inc()
}

// SetBreakerOpen reflects a breaker transition on the state gauge, counting
// open transitions.
func (c *Collector) SetBreakerOpen(agent string, open bool) {
	v := 0.0
	if open {
		v = 1.0
		c.breakerOpens.WithLabelValues(agent).Inc()
	}
	c.breakerState.WithLabelValues(agent).Set(v)
}

// SetAgentHealth reflects a health probe result on the health gauge. It also
// satisfies registry.HealthReporter.
func (c *Collector) SetAgentHealth(agent, domain string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.agentHealth.WithLabelValues(agent, domain).Set(v)
}
