// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-chat/internal/answer"
	"github.com/jeranaias/rigrun-chat/internal/config"
	"github.com/jeranaias/rigrun-chat/internal/logging"
	"github.com/jeranaias/rigrun-chat/internal/metrics"
	"github.com/jeranaias/rigrun-chat/internal/render"
	"github.com/jeranaias/rigrun-chat/internal/session"
	"github.com/jeranaias/rigrun-chat/internal/storage"
	"github.com/jeranaias/rigrun-chat/internal/view"
)

// ============================================================================
// CONSTANTS
// ============================================================================

// Version is the server version reported by /health.
var Version = "dev"

// DefaultMaxBodyBytes bounds JSON request bodies when unset.
const DefaultMaxBodyBytes = 64 * 1024

// ============================================================================
// CONFIG
// ============================================================================

// Config contains HTTP server settings.
type Config struct {
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxBodyBytes      int64
	RequestsPerMinute int
	HistoryLimit      int
	Auth              AuthConfig
}

// ConfigFrom extracts server settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		Auth: AuthConfig{
			BearerToken: cfg.Server.AdminToken,
			TOTPSecret:  cfg.Server.AdminTOTPSecret,
		},
	}
}

// Deps are the collaborators of the server. Answers may be unavailable
// (no backend); Store, Sessions and Views are required.
type Deps struct {
	Answers  *answer.Service
	Store    *storage.Store
	Sessions *session.Manager
	Views    *view.Views
	Renderer *render.Renderer
	Metrics  *metrics.Registry
	Logger   *zap.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the chat HTTP server.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *zap.Logger
	limiter *IPRateLimiter
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
	started time.Time

	historyLimit atomic.Int64
}

// New creates a Server and wires its routes and middleware.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("server: store is required")
	case deps.Sessions == nil:
		return nil, errors.New("server: session manager is required")
	case deps.Views == nil:
		return nil, errors.New("server: views are required")
	}
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Answers == nil {
		deps.Answers = answer.NewService(nil, answer.DefaultLimits(), deps.Logger)
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger,
		limiter: NewIPRateLimiter(cfg.RequestsPerMinute),
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	s.historyLimit.Store(int64(cfg.HistoryLimit))
	s.setupRoutes()

	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger, deps.Metrics),
		RateLimitMiddleware(s.limiter, deps.Metrics, s.logger),
	)(s.mux)
	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /chat", s.handleIndex)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", view.Static()))

	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /chat/history", s.handleHistory)
	s.mux.HandleFunc("POST /chat/clear", s.handleClear)
	s.mux.HandleFunc("GET /chat/export", s.handleExport)
	s.mux.HandleFunc("POST /feedback", s.handleFeedback)
	s.mux.HandleFunc("POST /render", s.handleRender)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics.Gatherer(), promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(s.logger.Named("metrics")),
		}))
	}

	admin := AuthMiddleware(s.cfg.Auth, s.logger)
	s.mux.Handle("GET /admin/stats", admin(http.HandlerFunc(s.handleAdminStats)))
	s.mux.Handle("GET /admin/sessions", admin(http.HandlerFunc(s.handleAdminSessions)))
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetHistoryLimit changes how many past messages are loaded per request.
func (s *Server) SetHistoryLimit(n int) {
	if n > 0 {
		s.historyLimit.Store(int64(n))
	}
}

func (s *Server) limit() int {
	return int(s.historyLimit.Load())
}

// Serve accepts connections on l until Shutdown is called. The per-IP
// limiter cleanup runs for the lifetime of ctx.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	go s.limiter.Run(ctx, 10*time.Minute)

	s.logger.Info("SERVER_START",
		zap.String("addr", l.Addr().String()),
		zap.String("version", Version),
		zap.String("backend", s.deps.Answers.BackendName()),
	)
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("SERVER_SHUTDOWN", zap.Int("sessions", s.deps.Sessions.Count()))
	return s.server.Shutdown(ctx)
}
