// Package server exposes the operator HTTP API: deployment status, start and
// abort, health, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiftwise/shiftwise/internal/store"
	"github.com/shiftwise/shiftwise/internal/telemetry"
	"github.com/shiftwise/shiftwise/pkg/types"
)

const (
	defaultAddr            = ":8080"
	defaultMaxRequestBody  = 1 << 20
	shutdownTimeout        = 10 * time.Second
	defaultHistoryListSize = 20
)

// CommandSender enqueues operator commands. Satisfied by opscmd.SQSQueue.
type CommandSender interface {
	Send(ctx context.Context, cmd types.Command) error
}

// Server is the operator-facing HTTP API.
type Server struct {
	store    store.Store
	commands CommandSender
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	cfg      types.ServerConfig
	httpSrv  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithCommands sets the command sender backing start and abort endpoints.
func WithCommands(c CommandSender) Option {
	return func(s *Server) { s.commands = c }
}

// WithTelemetry wires the Prometheus registry behind /metrics.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server.
func New(st store.Store, cfg types.ServerConfig, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = defaultMaxRequestBody
	}
	s := &Server{
		store:  st,
		logger: slog.Default(),
		cfg:    cfg,
	}
	for _, o := range opts {
		o(s)
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(s.requireAPIKey)
		}
		r.Get("/deployments", s.handleListDeployments)
		r.Get("/deployments/{name}", s.handleStatus)
		r.Post("/deployments/{name}/start", s.handleCommand(types.CommandStart))
		r.Post("/deployments/{name}/abort", s.handleCommand(types.CommandAbort))
	})

	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
