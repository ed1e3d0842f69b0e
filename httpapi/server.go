// Package httpapi exposes the router over HTTP: the routing endpoint,
// session and registry inspection, operational stats, breaker resets and the
// Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/engine"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/metrics"
)

// Server is the HTTP front of an engine.
type Server struct {
	engine  *engine.Engine
	metrics *metrics.Collector
	logger  logging.Logger
	handler http.Handler
}

// Options configures a Server.
type Options struct {
	// Metrics enables the /metrics endpoint when set.
	Metrics *metrics.Collector
	Logger  logging.Logger
	// AllowedOrigins configures CORS. Defaults to allowing all origins.
	AllowedOrigins []string
}

// NewServer builds the routed handler around the engine.
func NewServer(e *engine.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{AllowedOrigins: []string{"*"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		engine:  e,
		metrics: opts.Metrics,
		logger:  logging.OrNoOp(opts.Logger),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/route", s.handleRoute).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/variables", s.handleMergeVariables).Methods(http.MethodPut)
	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/domains", s.handleListDomains).Methods(http.MethodGet)
	api.HandleFunc("/agents/capabilities", s.handleListCapabilities).Methods(http.MethodGet)
	api.HandleFunc("/agents/{agent}/health", s.handleAgentHealth).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/breakers/reset", s.handleResetAllBreakers).Methods(http.MethodPost)
	api.HandleFunc("/breakers/{agent}/reset", s.handleResetBreaker).Methods(http.MethodPost)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(r)
	return s
}

// Handler returns the fully routed handler.
func (s *Server) Handler() http.Handler { return s.handler }

// RouteRequestBody is the request payload for POST /v1/route.
type RouteRequestBody struct {
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var body RouteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if body.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := s.engine.RouteRequest(r.Context(), body.SessionID, body.UserID, body.Message, body.Context)
	if err != nil {
		s.logger.Error("route request failed", "session_id", body.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal routing error")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.engine.ContextStore().Read(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session read failed")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.DeleteSession(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "session delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (s *Server) handleMergeVariables(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var vars map[string]any
	if err := json.NewDecoder(r.Body).Decode(&vars); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.ContextStore().MergeVariables(r.Context(), id, vars); err != nil {
		writeError(w, http.StatusInternalServerError, "variables update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "session_id": id})
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	agent := mux.Vars(r)["agent"]
	d, err := s.engine.Registry().Get(agent)
	if err != nil {
		if errors.Is(err, core.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "unknown agent")
			return
		}
		writeError(w, http.StatusInternalServerError, "registry lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":             d.Name,
		"domain":            d.Domain,
		"status":            d.Status,
		"last_health_check": d.LastHealthCheck,
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.engine.Registry().All()
	if domain := r.URL.Query().Get("domain"); domain != "" {
		agents = s.engine.Registry().ListByDomain(domain)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": s.engine.Registry().Domains()})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"capabilities": s.engine.Registry().Capabilities()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.RoutingStats())
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	agent := mux.Vars(r)["agent"]
	if _, err := s.engine.Registry().Get(agent); err != nil {
		if errors.Is(err, core.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "unknown agent")
			return
		}
		writeError(w, http.StatusInternalServerError, "registry lookup failed")
		return
	}
	s.engine.ResetCircuitBreaker(agent)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "agent": agent})
}

func (s *Server) handleResetAllBreakers(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetAllCircuitBreakers()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenAndServe runs the server on addr until ctx is canceled, then shuts
// down gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
