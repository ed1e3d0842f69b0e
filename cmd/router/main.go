// Command router runs the intent-driven agent router as an HTTP service:
// agent manifest loading, LLM-backed classification, capability selection,
// guarded execution and session context, fronted by the REST API and a
// Prometheus scrape endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentrouter/classifier"
	"github.com/hupe1980/agentrouter/config"
	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/engine"
	"github.com/hupe1980/agentrouter/httpapi"
	"github.com/hupe1980/agentrouter/invoker"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/metrics"
	"github.com/hupe1980/agentrouter/registry"
	"github.com/hupe1980/agentrouter/resilience"
	"github.com/hupe1980/agentrouter/session"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "router: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting agent router", "addr", cfg.Server.Addr(), "classifier", cfg.Classifier.Provider)

	collector := metrics.NewCollector()

	reg := registry.NewInMemory()
	if cfg.Router.ManifestPath != "" {
		if err := registry.LoadManifest(cfg.Router.ManifestPath, reg); err != nil {
			return fmt.Errorf("load agent manifest: %w", err)
		}
		logger.Info("agent manifest loaded", "path", cfg.Router.ManifestPath, "agents", len(reg.All()))
	}

	store, err := newContextStore(cfg.Redis, logger)
	if err != nil {
		return err
	}

	cls, err := newClassifier(cfg.Classifier, reg, logger)
	if err != nil {
		return err
	}

	httpInvoker := invoker.NewHTTP(func(o *invoker.Options) {
		o.Logger = logger
	})

	eng := engine.New(func(o *engine.Options) {
		o.Config = engine.Config{
			RequestTimeout:   cfg.Router.RequestTimeout,
			RetryPolicy:      resilience.RetryPolicy{MaxRetries: cfg.Router.MaxRetries, Base: cfg.Router.RetryBackoffBase},
			BreakerThreshold: cfg.Router.BreakerThreshold,
		}
		o.Registry = reg
		o.ContextStore = store
		o.Classifier = cls
		o.Invoker = httpInvoker
		o.SimilarityThreshold = cfg.Router.SimilarityThreshold
		o.Metrics = collector
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := registry.NewHealthChecker(reg, httpInvoker, func(o *registry.HealthCheckerOptions) {
		o.Interval = cfg.Router.HealthCheckInterval
		o.Reporter = collector
		o.Logger = logger
	})
	go checker.Run(ctx)

	server := httpapi.NewServer(eng, func(o *httpapi.Options) {
		o.Metrics = collector
		o.Logger = logger
	})

	return server.ListenAndServe(ctx, cfg.Server.Addr(), cfg.Server.ShutdownTimeout)
}

func newLogger(cfg config.LoggingConfig) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Level),
		Format:    cfg.Format,
		Component: "router",
	})
}

func newContextStore(cfg config.RedisConfig, logger logging.Logger) (core.ContextStore, error) {
	if !cfg.Enabled {
		logger.Info("using in-memory session store")
		return session.NewInMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logger.Info("using redis session store", "addr", cfg.Addr, "ttl", cfg.SessionTTL)

	return session.NewRedisStore(client, func(o *session.RedisOptions) {
		o.TTL = cfg.SessionTTL
		o.Logger = logger
	}), nil
}

func newClassifier(cfg config.ClassifierConfig, reg core.Registry, logger logging.Logger) (core.Classifier, error) {
	var backend classifier.Backend
	switch cfg.Provider {
	case "anthropic":
		backend = classifier.NewAnthropicBackend(func(o *classifier.AnthropicOptions) {
			if cfg.APIKey != "" {
				o.APIKey = cfg.APIKey
			}
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
		})
	case "openai":
		backend = classifier.NewOpenAIBackend(func(o *classifier.OpenAIOptions) {
			if cfg.APIKey != "" {
				o.APIKey = cfg.APIKey
			}
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
	case "none":
		logger.Warn("classification disabled, all requests use the default classification")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}

	return classifier.New(backend, func(o *classifier.Options) {
		o.Timeout = cfg.Timeout
		o.Registry = reg
		o.Logger = logger
	}), nil
}
