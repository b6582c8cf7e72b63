// Package server implements the HTTP API that exposes docqa sessions: upload
// a PDF, then ask questions about it or generate a quiz from it.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/version"
)

// defaultMaxUploadBytes caps uploads when Config.MaxUploadBytes is zero.
const defaultMaxUploadBytes = 32 << 20

// New constructs a Server from the provided session manager and config.
func New(sessions *session.Manager, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("server: session manager must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Long enough for an index build or a slow generation.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(cfg.MetricsRegistry)
	}

	s := &Server{
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  metrics,
	}

	if cfg.APIKey == "" {
		log.Warn("server: DOCQA_API_KEY not set, API authentication is disabled")
	}

	limiter, stop := newModelLimiter(cfg.RateLimit, cfg.RateBurst, metrics)
	s.limiter = limiter
	s.stopRL = stop

	// protected routes require the API key; limited routes also spend the
	// client and session budgets because they reach the model backends.
	protected := func(h http.HandlerFunc) http.Handler { return requireAPIKey(cfg.APIKey, h) }
	limited := func(h http.HandlerFunc) http.Handler { return requireAPIKey(cfg.APIKey, limiter.middleware(h)) }

	mux := http.NewServeMux()
	mux.Handle("POST /api/sessions", limited(s.handleCreateSession))
	mux.Handle("GET /api/sessions/{id}", protected(s.handleGetSession))
	mux.Handle("PUT /api/sessions/{id}/document", limited(s.handleReanalyze))
	mux.Handle("POST /api/sessions/{id}/ask", limited(s.handleAsk))
	mux.Handle("POST /api/sessions/{id}/quiz", limited(s.handleQuiz))
	mux.Handle("GET /api/sessions/{id}/history", protected(s.handleHistory))
	mux.Handle("DELETE /api/sessions/{id}", protected(s.handleDeleteSession))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.handler = requestLogger(log, instrument(metrics, mux))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the wrapped route tree. Tests drive it with httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docqa server listening",
			slog.String("addr", "http://"+s.httpServer.Addr),
			slog.String("index_backend", s.cfg.IndexBackend),
			slog.String("version", version.Version),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
