package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing document sessions.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server.

Clients upload a PDF to create a session, then ask questions about it or
request a quiz. Each session holds its own index; the model credential is
supplied per session in the X-Model-Token header.

Examples:
  docqa serve
  docqa serve --port 9090
  INDEX_BACKEND=qdrant MODEL_PROVIDER=ollama docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			flush, ok := tracing.Install(tracing.ConfigFromEnv())
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			backends, err := session.NewEnvBackends()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = backends.Close() }()
			backends.LogSummary(log)

			transcripts, closeHistory := openHistory(log)
			defer closeHistory()

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)

			sessions, err := buildManager(backends, transcripts, metrics.ObservePrompt, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = sessions.Close() }()

			rateLimit, err := envFloat("DOCQA_RATE_LIMIT", 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			rateBurst, err := envInt("DOCQA_RATE_BURST", 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			maxUploadMB, err := envInt("DOCQA_MAX_UPLOAD_MB", 0)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(sessions, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        buildPingers(backends, log),
				RateLimit:      rateLimit,
				RateBurst:      rateBurst,
				MaxUploadBytes: int64(maxUploadMB) << 20,
				APIKey:         os.Getenv("DOCQA_API_KEY"),
				Metrics:        metrics,
				IndexBackend:   backends.IndexBackend(),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	defaultPort, err := envInt("DOCQA_PORT", 8080)
	if err != nil {
		defaultPort = 8080
	}
	defaultHost := os.Getenv("DOCQA_HOST")
	if defaultHost == "" {
		defaultHost = "127.0.0.1"
	}

	cmd.Flags().StringVar(&host, "host", defaultHost, "Host address to bind to (env: DOCQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", defaultPort, "TCP port to listen on (env: DOCQA_PORT)")

	return cmd
}
