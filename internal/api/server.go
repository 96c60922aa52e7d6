// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the operational HTTP surface of sprintd: probes,
// Prometheus metrics, read access to discovered pools and positions, and
// start/stop control over the discovery monitors.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lpsprint/sprint/internal/cache"
	"github.com/lpsprint/sprint/internal/health"
	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/rpcpool"
	"github.com/lpsprint/sprint/internal/store"
)

// Default rate limit for the /api/v1 group, per client IP.
const defaultRateLimit = 600

// MonitorControl pauses and resumes pool discovery at runtime. Implemented
// by the daemon, which owns the monitors, their sink and the root context.
type MonitorControl interface {
	StartDiscovery() error
	StopDiscovery() error
	DiscoveryActive() bool
}

// Config tunes the HTTP server.
type Config struct {
	// ListenAddr is the host:port to serve on.
	ListenAddr string
	// Token gates the monitor control endpoints when non-empty.
	Token string
	// RateLimit is the per-IP request budget per minute on /api/v1.
	RateLimit int
}

// Deps are the components the handlers read from and act on.
type Deps struct {
	Store   *store.Store
	Pool    *rpcpool.Pool
	Cache   cache.Cache
	Health  *health.Manager
	Monitor MonitorControl
	Version string
}

// Server is the sprintd operational API.
type Server struct {
	cfg     Config
	deps    Deps
	logger  zerolog.Logger
	http    *http.Server
	started time.Time
}

// New assembles the router and the underlying http.Server. Call Start to
// begin serving.
func New(cfg Config, deps Deps) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  log.WithComponent("api"),
		started: time.Now(),
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// routes builds the middleware stack and route tree. Order matters: the
// recoverer sits outermost, request identity before logging so every line
// carries it, tracing before handlers so spans cover handler time.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverer)
	r.Use(requestID)
	r.Use(otelTracing("sprintd-api"))
	r.Use(s.requestLogger)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			s.cfg.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rateLimited),
		))

		r.Get("/status", s.handleStatus)
		r.Get("/pools", s.handlePools)
		r.Get("/positions", s.handlePositions)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/monitor/start", s.handleMonitorStart)
			r.Post("/monitor/stop", s.handleMonitorStop)
		})
	})

	return r
}

// Start serves until Shutdown is called. A closed server returns nil so the
// daemon's errgroup treats graceful shutdown as success.
func (s *Server) Start() error {
	s.logger.Info().
		Str("event", "api.started").
		Str("addr", s.cfg.ListenAddr).
		Bool("token_auth", s.cfg.Token != "").
		Msg("http api listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Str("event", "api.stopping").Msg("shutting down http api")
	return s.http.Shutdown(ctx)
}

// Handler exposes the assembled router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// otelTracing wraps the mux with OpenTelemetry HTTP instrumentation. Probe
// and scrape endpoints are filtered out to keep traces about real work.
func otelTracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithFilter(func(r *http.Request) bool {
				switch r.URL.Path {
				case "/healthz", "/readyz", "/metrics":
					return false
				}
				return true
			}),
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return operation + " " + r.Method + " " + r.URL.Path
			}),
		)
	}
}
