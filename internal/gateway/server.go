// Package gateway is the client-facing surface: the REST API for sessions,
// chat, events, and introspection, plus the per-session WebSocket channel.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/internal/hass"
	"github.com/hearthd/hearth/internal/observability"
	"github.com/hearthd/hearth/internal/session"
	"github.com/hearthd/hearth/internal/transfer"
)

// Config controls the gateway server.
type Config struct {
	Addr string

	// HeartbeatInterval is how often clients are expected to heartbeat.
	HeartbeatInterval time.Duration
	// IdleTimeout reaps WS connections silent for this long.
	IdleTimeout time.Duration
}

// Deps carries the gateway's collaborators.
type Deps struct {
	Manager    *session.Manager
	Controller *transfer.Controller
	Registry   *agent.Registry
	Root       string
	Metrics    *observability.Metrics
	Logger     *slog.Logger

	// HA is optional; when present the health endpoint reports the
	// connection state.
	HA *hass.Client
}

// Server serves the HTTP and WebSocket API.
type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds the server and its route table.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 3 * cfg.HeartbeatInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	s := &Server{config: cfg, deps: deps, logger: logger}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/sessions/", s.handleSessionList)
	mux.HandleFunc("POST /api/sessions/create", s.handleSessionCreate)
	mux.HandleFunc("PUT /api/sessions/{id}/rename", s.handleSessionRename)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.HandleFunc("GET /api/sessions/{id}/reset", s.handleSessionReset)
	mux.HandleFunc("GET /api/sessions/{id}/artifacts", s.handleArtifactList)
	mux.HandleFunc("GET /api/sessions/{id}/artifacts/{key}", s.handleArtifactGet)
	mux.HandleFunc("PUT /api/sessions/{id}/artifacts/{key}", s.handleArtifactPut)
	mux.HandleFunc("GET /api/events/{session_id}", s.handleEvents)
	mux.HandleFunc("GET /api/agent-info", s.handleAgentInfo)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /ws/{session_id}", s.handleWS)

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	return s.withRequestLog(mux)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.config.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps an error kind to a status and emits {"error": ...}.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, fault.HTTPStatus(fault.KindOf(err)), map[string]string{"error": err.Error()})
}
