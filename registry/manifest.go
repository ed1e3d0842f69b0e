package registry

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrouter/core"
)

// manifestAgent is the YAML shape of one agent entry.
type manifestAgent struct {
	URL                 string   `yaml:"url"`
	Capabilities        []string `yaml:"capabilities"`
	Description         string   `yaml:"description"`
	HealthCheckEndpoint string   `yaml:"health_check_endpoint"`
	TimeoutSeconds      int      `yaml:"timeout"`
	RetryCount          int      `yaml:"retry_count"`
}

// manifest is the YAML shape of an agents file:
//
//	agents:
//	  baggage_operations:
//	    baggage_tracker:
//	      url: http://baggage-tracker:8080
//	      capabilities: [track, locate]
//	      description: Tracks bags across the network
//	      health_check_endpoint: /health
//	      timeout: 30
//	      retry_count: 3
type manifest struct {
	Agents map[string]map[string]manifestAgent `yaml:"agents"`
}

const (
	defaultHealthEndpoint = "/health"
	defaultTimeoutSeconds = 30
	defaultRetryCount     = 3
)

// ParseManifest decodes a YAML agents manifest into descriptors. Agents are
// grouped by domain; per-agent defaults follow the manifest conventions
// (30s timeout, 3 retries, /health probe).
func ParseManifest(data []byte) ([]*core.AgentDescriptor, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse agents manifest: %w", err)
	}

	var out []*core.AgentDescriptor
	for domain, agents := range m.Agents {
		for name, a := range agents {
			if a.URL == "" {
				return nil, fmt.Errorf("agent %s/%s: url is required", domain, name)
			}
			if len(a.Capabilities) == 0 {
				return nil, fmt.Errorf("agent %s/%s: at least one capability is required", domain, name)
			}

			d := &core.AgentDescriptor{
				Name:           name,
				Domain:         domain,
				Capabilities:   a.Capabilities,
				Description:    a.Description,
				Endpoint:       a.URL,
				HealthEndpoint: a.HealthCheckEndpoint,
				Timeout:        time.Duration(a.TimeoutSeconds) * time.Second,
				RetryBudget:    a.RetryCount,
				Status:         core.HealthUnknown,
			}
			if d.HealthEndpoint == "" {
				d.HealthEndpoint = defaultHealthEndpoint
			}
			if a.TimeoutSeconds <= 0 {
				d.Timeout = defaultTimeoutSeconds * time.Second
			}
			if a.RetryCount <= 0 {
				d.RetryBudget = defaultRetryCount
			}
			out = append(out, d)
		}
	}
	return out, nil
}

// LoadManifest reads a YAML agents manifest from disk and registers every
// agent into reg.
func LoadManifest(path string, reg core.Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read agents manifest: %w", err)
	}

	descriptors, err := ParseManifest(data)
	if err != nil {
		return err
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}
