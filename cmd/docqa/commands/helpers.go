package commands

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/store"
)

// defaultOllamaURL is probed for readiness when MODEL_PROVIDER=ollama and no
// MODEL_BASE_URL is set.
const defaultOllamaURL = "http://localhost:11434"

// buildChunker reads CHUNK_SIZE and CHUNK_OVERLAP, falling back to the
// ingestion defaults.
func buildChunker() (*ingestion.Chunker, error) {
	size, err := envInt("CHUNK_SIZE", ingestion.DefaultChunkSize)
	if err != nil {
		return nil, err
	}
	overlap, err := envInt("CHUNK_OVERLAP", ingestion.DefaultChunkOverlap)
	if err != nil {
		return nil, err
	}
	c, err := ingestion.NewChunker(size, overlap)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	return c, nil
}

// buildManager wires a session manager over the environment-configured
// backends. transcripts and observe may be nil.
func buildManager(backends session.Backends, transcripts store.TranscriptStore, observe func(string, budget.Usage), log *slog.Logger) (*session.Manager, error) {
	chunker, err := buildChunker()
	if err != nil {
		return nil, err
	}
	return session.NewManager(&session.Config{
		Backends:      backends,
		Ingestor:      ingestion.NewPDFIngestor(&ingestion.PDFConfig{Logger: log}),
		Chunker:       chunker,
		Transcripts:   transcripts,
		ObservePrompt: observe,
	})
}

// openHistory opens the exchange transcript store. DOCQA_HISTORY_DB overrides
// the default path (~/.docqa/history.db); "disabled" turns it off. Failures
// disable history rather than aborting. The returned close func is never nil.
func openHistory(log *slog.Logger) (store.TranscriptStore, func()) {
	dbPath := os.Getenv("DOCQA_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
		return nil, func() {}
	}

	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, func() {}
		}
		dbPath = p
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, func() {}
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildPingers assembles the readiness probes for the configured backends.
func buildPingers(backends *session.EnvBackends, log *slog.Logger) []server.Pinger {
	var pingers []server.Pinger

	if client := backends.Qdrant(); client != nil {
		pingers = append(pingers, server.NewQdrantPinger(client))
	}

	modelURL := os.Getenv("MODEL_BASE_URL")
	if modelURL == "" && provider.Backend(os.Getenv("MODEL_PROVIDER")) == provider.BackendOllama {
		modelURL = defaultOllamaURL
	}
	if modelURL != "" {
		pingers = append(pingers, server.NewHTTPPinger("model", modelURL, &http.Client{Timeout: 5 * time.Second}))
	}

	names := make([]string, 0, len(pingers))
	for _, p := range pingers {
		names = append(names, p.Name())
	}
	log.Info("readiness probes configured", slog.String("pingers", strings.Join(names, ",")))

	return pingers
}

// envInt parses an integer environment variable, returning fallback when unset.
func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

// envFloat parses a float environment variable, returning fallback when unset.
func envFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return f, nil
}
