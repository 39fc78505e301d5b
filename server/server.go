// Package server implements the Overseer HTTP server: REST API, auth,
// and SSE real-time events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/overseer/config"
	"github.com/GoCodeAlone/overseer/deps"
	"github.com/GoCodeAlone/overseer/hub"
	"github.com/GoCodeAlone/overseer/orchestrator"
	"github.com/GoCodeAlone/overseer/server/api"
	"github.com/GoCodeAlone/overseer/store"
)

// Server is the Overseer HTTP server.
type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	ctrl     *orchestrator.Controller
	store    *store.Store
	deps     *deps.Manager
	messages api.MessageLog
	hub      *hub.Hub
	handlers *api.Handlers

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg *config.Config, ver string, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		startTime: time.Now(),
		version:   ver,
	}
}

// SetController attaches the orchestration controller.
func (s *Server) SetController(c *orchestrator.Controller) {
	s.ctrl = c
}

// SetStore attaches the persistence layer used by read endpoints.
func (s *Server) SetStore(st *store.Store) {
	s.store = st
}

// SetDeps attaches the dependency graph manager.
func (s *Server) SetDeps(d *deps.Manager) {
	s.deps = d
}

// SetMessageLog attaches the dispatcher history used by the message
// endpoints.
func (s *Server) SetMessageLog(m api.MessageLog) {
	s.messages = m
}

// SetHub attaches the event broadcast hub serving /events.
func (s *Server) SetHub(h *hub.Hub) {
	s.hub = h
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Ctrl:     s.ctrl,
		Store:    s.store,
		Deps:     s.deps,
		Messages: s.messages,
		Logger:   s.logger,
		Version:  s.version,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE — auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API — wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams hub events to the client.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Verify auth via query token param for SSE (EventSource can't set headers)
	token := r.URL.Query().Get("token")
	if token != "" {
		if _, err := s.verifyToken(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.hub.ServeHTTP(w, r)
}
