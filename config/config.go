// Package config loads the router's runtime configuration from a YAML file
// with environment variable overrides. Every field has a usable default so
// an empty config starts a functional in-memory router.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Router     RouterConfig     `yaml:"router"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisConfig configures the optional Redis session store. When Enabled is
// false the router uses the in-memory store.
type RedisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ClassifierConfig selects and configures the LLM classification backend.
// Provider is "anthropic", "openai" or "none".
type ClassifierConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RouterConfig tunes routing behavior.
type RouterConfig struct {
	ManifestPath        string        `yaml:"manifest_path"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryBackoffBase    time.Duration `yaml:"retry_backoff_base"`
	BreakerThreshold    int           `yaml:"breaker_threshold"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			SessionTTL: time.Hour,
		},
		Classifier: ClassifierConfig{
			Provider: "anthropic",
			Timeout:  10 * time.Second,
		},
		Router: RouterConfig{
			ManifestPath:        "agents.yaml",
			RequestTimeout:      2 * time.Minute,
			MaxRetries:          3,
			RetryBackoffBase:    time.Second,
			BreakerThreshold:    3,
			SimilarityThreshold: 0.7,
			HealthCheckInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the config file at path (optional, "" skips the file), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays ROUTER_* environment variables onto the config. Only
// variables that are set override the file values.
func (c *Config) applyEnv() {
	envString("ROUTER_HOST", &c.Server.Host)
	envInt("ROUTER_PORT", &c.Server.Port)

	envBool("ROUTER_REDIS_ENABLED", &c.Redis.Enabled)
	envString("ROUTER_REDIS_ADDR", &c.Redis.Addr)
	envString("ROUTER_REDIS_PASSWORD", &c.Redis.Password)
	envInt("ROUTER_REDIS_DB", &c.Redis.DB)

	envString("ROUTER_CLASSIFIER_PROVIDER", &c.Classifier.Provider)
	envString("ROUTER_CLASSIFIER_MODEL", &c.Classifier.Model)
	envString("ANTHROPIC_API_KEY", &c.Classifier.APIKey)
	if c.Classifier.Provider == "openai" {
		envString("OPENAI_API_KEY", &c.Classifier.APIKey)
	}

	envString("ROUTER_MANIFEST_PATH", &c.Router.ManifestPath)
	envInt("ROUTER_MAX_RETRIES", &c.Router.MaxRetries)
	envInt("ROUTER_BREAKER_THRESHOLD", &c.Router.BreakerThreshold)

	envString("ROUTER_LOG_LEVEL", &c.Logging.Level)
	envString("ROUTER_LOG_FORMAT", &c.Logging.Format)
}

// Validate rejects configurations that cannot produce a working router.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Classifier.Provider {
	case "anthropic", "openai", "none":
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}
	if c.Router.BreakerThreshold < 0 {
		return fmt.Errorf("breaker threshold must not be negative")
	}
	if c.Router.SimilarityThreshold < 0 || c.Router.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be within [0, 1]")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
