package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	return w.Body.String()
}

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("sequential", true, 120*time.Millisecond)
	c.RecordRequest("parallel", false, 50*time.Millisecond)

	body := scrape(t, c)
	assert.Contains(t, body, `orchestrator_requests_total{execution_mode="sequential",status="success"} 1`)
	assert.Contains(t, body, `orchestrator_requests_total{execution_mode="parallel",status="failure"} 1`)
	assert.Contains(t, body, "orchestrator_request_duration_seconds")
}

func TestCollector_RecordAgentCall(t *testing.T) {
	c := NewCollector()
	c.RecordAgentCall("billing_agent", true, 30*time.Millisecond)
	c.RecordAgentCall("billing_agent", false, 10*time.Millisecond)
	c.RecordAgentFailure("billing_agent", "timeout")

	body := scrape(t, c)
	assert.Contains(t, body, `agent_requests_total{agent_name="billing_agent",status="success"} 1`)
	assert.Contains(t, body, `agent_requests_total{agent_name="billing_agent",status="failure"} 1`)
	assert.Contains(t, body, `agent_failures_total{agent_name="billing_agent",error_type="timeout"} 1`)
}

func TestCollector_BreakerGauge(t *testing.T) {
	c := NewCollector()
	c.SetBreakerOpen("flaky_agent", true)

	body := scrape(t, c)
	assert.Contains(t, body, `circuit_breaker_state{agent_name="flaky_agent"} 1`)
	assert.Contains(t, body, `circuit_breaker_opens_total{agent_name="flaky_agent"} 1`)

	c.SetBreakerOpen("flaky_agent", false)
	body = scrape(t, c)
	assert.Contains(t, body, `circuit_breaker_state{agent_name="flaky_agent"} 0`)
	// Closing does not count another open transition.
	assert.Contains(t, body, `circuit_breaker_opens_total{agent_name="flaky_agent"} 1`)
}

func TestCollector_HealthGauge(t *testing.T) {
	c := NewCollector()
	c.SetAgentHealth("billing_agent", "billing", true)
	c.SetAgentHealth("infra_agent", "infrastructure", false)

	body := scrape(t, c)
	assert.Contains(t, body, `agent_health_status{agent_name="billing_agent",domain="billing"} 1`)
	assert.Contains(t, body, `agent_health_status{agent_name="infra_agent",domain="infrastructure"} 0`)
}

func TestCollector_Fallback(t *testing.T) {
	c := NewCollector()
	c.RecordFallback()
	c.RecordFallback()
	assert.Contains(t, scrape(t, c), "selection_fallback_total 2")
}
