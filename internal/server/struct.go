package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request,
	// including the uploaded document.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover index builds and generation.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the size of an uploaded document (default: 32 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained rate (requests/second) allowed on
	// model-backed routes, applied per client and again per session.
	// Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the bucket size for RateLimit. Defaults to 20 if zero.
	RateBurst int
	// IndexBackend names the vector store sessions are built on. It is
	// reported by GET /api/ready.
	IndexBackend string
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics is the shared metrics set. If nil, one is registered against
	// MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry receives the server metrics when Metrics is nil.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Server is the HTTP server that exposes document sessions.
type Server struct {
	// sessions owns every live session.
	sessions *session.Manager
	// cfg holds the resolved server configuration.
	cfg *Config
	// handler is the fully wrapped route tree.
	handler http.Handler
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics records operation and HTTP metrics.
	metrics *Metrics
	// limiter meters the model-backed routes.
	limiter *modelLimiter
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/sessions/{id}/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// askResponse is the JSON response for POST /api/sessions/{id}/ask.
type askResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// quizResponse is the JSON response for POST /api/sessions/{id}/quiz.
// Quiz is the model output, unmodified.
type quizResponse struct {
	SessionID string `json:"session_id"`
	Quiz      string `json:"quiz"`
}

// historyResponse is the JSON response for GET /api/sessions/{id}/history.
type historyResponse struct {
	SessionID string           `json:"session_id"`
	Exchanges []store.Exchange `json:"exchanges"`
}
