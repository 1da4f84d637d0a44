// Package server implements the A.U.R.A HTTP server: REST API, auth, and
// real-time SSE and WebSocket feeds.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/config"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/server/api"
	"github.com/GoCodeAlone/aura/server/ws"
)

// Server is the A.U.R.A HTTP server.
type Server struct {
	cfg     config.Config
	router  chi.Router
	httpSrv *http.Server
	logger  *slog.Logger

	agent         api.TurnHandler
	conversations conversation.Store
	tasks         api.TaskReader
	bus           comms.Bus
	hub           *ws.Hub
	detachHub     func()

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		logger:    logger,
		hub:       ws.NewHub(logger.With("component", "hub")),
		startTime: time.Now(),
		version:   ver,
	}
}

// SetAgent attaches the turn handler to the server.
func (s *Server) SetAgent(a api.TurnHandler) {
	s.agent = a
}

// SetConversations attaches the conversation store to the server.
func (s *Server) SetConversations(store conversation.Store) {
	s.conversations = store
}

// SetTasks attaches the task registry to the server.
func (s *Server) SetTasks(tasks api.TaskReader) {
	s.tasks = tasks
}

// SetBus attaches the event bus and feeds its events to the live streams.
func (s *Server) SetBus(bus comms.Bus) {
	if s.detachHub != nil {
		s.detachHub()
	}
	s.bus = bus
	s.detachHub = s.hub.Attach(bus)
}

// Handler registers routes on first use and returns the root handler.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.registerRoutes()
	}
	return s.router
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.detachHub != nil {
		s.detachHub()
		s.detachHub = nil
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Agent:         s.agent,
		Conversations: s.conversations,
		Tasks:         s.tasks,
		Bus:           s.bus,
		Logger:        s.logger,
		Version:       s.version,
		StartAt:       s.startTime,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// Public routes (no auth required)
	r.Post("/api/auth/login", s.handleLogin)
	r.Get("/api/status", h.StatusHandler())
	r.Get("/api/version", h.VersionHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Live feeds accept the token as a query param because EventSource
	// and browser WebSockets can't set headers.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/events", s.hub.ServeSSE)
		r.Get("/ws", s.hub.ServeWS)
	})

	// Protected API
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		h.RegisterRoutes(r)
		r.Get("/api/auth/me", s.handleMe)
	})

	s.router = r
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
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
