// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jellydator/ttlcache/v3"

	"github.com/answerlake/answerlake/pkg/metrics"
	"github.com/answerlake/answerlake/pkg/pipeline"
	"github.com/answerlake/answerlake/pkg/schema"
	"github.com/answerlake/answerlake/pkg/warehouse"
)

const (
	defaultSchemaCacheTTL = 5 * time.Minute
	defaultRequestTimeout = 5 * time.Minute
	shutdownGrace         = 30 * time.Second
)

// Config carries the server dependencies. Log and Orchestrator are
// required; Conn is used for schema summarization and health reporting.
type Config struct {
	Log          *slog.Logger
	Orchestrator *pipeline.Orchestrator
	Conn         warehouse.Connector

	// SchemaCacheTTL bounds how long a warehouse schema summary is reused
	// across requests. Zero selects the default.
	SchemaCacheTTL time.Duration

	// RequestTimeout is the per-analysis deadline. Zero selects the
	// default.
	RequestTimeout time.Duration

	// AllowedOrigins configures CORS. Empty disables cross-origin access.
	AllowedOrigins []string
}

// Server is the HTTP front end. It installs a cached schema summarizer on
// the orchestrator at construction time.
type Server struct {
	log     *slog.Logger
	orch    *pipeline.Orchestrator
	conn    warehouse.Connector
	timeout time.Duration
	router  chi.Router

	cache   *ttlcache.Cache[string, *schema.Summary]
	cacheMu sync.Mutex
	ttl     time.Duration
}

// New builds the server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("log is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Conn == nil {
		return nil, fmt.Errorf("warehouse connector is required")
	}
	if cfg.SchemaCacheTTL == 0 {
		cfg.SchemaCacheTTL = defaultSchemaCacheTTL
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		log:     cfg.Log,
		orch:    cfg.Orchestrator,
		conn:    cfg.Conn,
		timeout: cfg.RequestTimeout,
		ttl:     cfg.SchemaCacheTTL,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *schema.Summary](cfg.SchemaCacheTTL),
		),
	}
	s.orch.SetSummarizer(s.summarize)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Post("/v1/analyze", s.handleAnalyze)
	r.Post("/v1/analyze/stream", s.handleAnalyzeStream)

	s.router = r
	return s, nil
}

// Handler returns the routed handler, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on the listener until ctx is canceled, then drains
// connections within the shutdown grace period.
func (s *Server) Start(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Janitor evicts expired schema summaries between requests.
	go s.cache.Start()
	defer s.cache.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down", "grace", shutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// summarize is the orchestrator's schema source: one cached summary per
// datasource kind, refreshed after the TTL expires.
func (s *Server) summarize(ctx context.Context) (*schema.Summary, error) {
	key := s.conn.Kind()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if item := s.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	summary, err := schema.New(s.conn).Summarize(ctx, schema.Options{IncludeTypes: true})
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, summary, s.ttl)
	s.log.Debug("schema summary refreshed", "datasource", key, "ttl", s.ttl)
	return summary, nil
}
