package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/generation"
	"github.com/54b3r/docqa-go/internal/prompt"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Index backends selectable via INDEX_BACKEND.
const (
	IndexMemory  = "memory"
	IndexChromem = "chromem"
	IndexQdrant  = "qdrant"
)

// Credentials carries the per-session model token supplied by the user.
// An empty Token falls back to the configured API keys. The token is never
// logged.
type Credentials struct {
	Token string
}

// Engine is the set of collaborators built from one set of credentials.
type Engine struct {
	Embedder  rag.Embedder
	Generator generation.Generator
	Assembler *prompt.Assembler
	// MaxOutputTokens is the generation limit, reported in prompt budgets.
	MaxOutputTokens int
}

// Backends builds the per-session collaborators. EnvBackends is the
// production implementation; tests substitute fakes.
type Backends interface {
	// Engine returns the embedder, generator and prompt assembler for creds.
	Engine(ctx context.Context, creds Credentials) (*Engine, error)
	// VectorStore returns a fresh, empty store for one index build.
	VectorStore(ctx context.Context) (rag.VectorStore, error)
}

// EnvBackends resolves backends from environment variables:
//
//	INDEX_BACKEND          memory | chromem | qdrant (default: memory)
//	QDRANT_HOST            qdrant host (default: localhost)
//	QDRANT_PORT            qdrant gRPC port (default: 6334)
//	QDRANT_API_KEY         qdrant API key
//	QDRANT_USE_TLS         "true" to enable TLS
//	QDRANT_COLLECTION_PREFIX  collection name prefix (default: docqa)
//	MODEL_RETRIES          generation retries with backoff (default: 0)
//	PROMPT_MARKUP          plain | zephyr (default: zephyr for huggingface, plain otherwise)
//
// Model and embedding settings are read by provider.ConfigFromEnv and
// embedder.ConfigFromEnv.
type EnvBackends struct {
	index   string
	qdrant  *qdrant.Client
	prefix  string
	retries int
	markup  prompt.Markup
}

// NewEnvBackends reads the index and generation settings from the
// environment. A qdrant client is opened eagerly when INDEX_BACKEND=qdrant
// so misconfiguration surfaces at startup.
func NewEnvBackends() (*EnvBackends, error) {
	b := &EnvBackends{
		index:   strings.ToLower(envOrDefault("INDEX_BACKEND", IndexMemory)),
		retries: envInt("MODEL_RETRIES", 0),
		markup:  prompt.Markup(strings.ToLower(os.Getenv("PROMPT_MARKUP"))),
	}

	switch b.index {
	case IndexMemory, IndexChromem:
	case IndexQdrant:
		cfg := &rag.QdrantConfig{
			Host:             os.Getenv("QDRANT_HOST"),
			Port:             envInt("QDRANT_PORT", 0),
			CollectionPrefix: os.Getenv("QDRANT_COLLECTION_PREFIX"),
			APIKey:           os.Getenv("QDRANT_API_KEY"),
			UseTLS:           strings.EqualFold(os.Getenv("QDRANT_USE_TLS"), "true"),
		}
		client, err := rag.NewQdrantClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: session: %w", rag.ErrConfig, err)
		}
		b.qdrant = client
		b.prefix = cfg.CollectionPrefix
	default:
		return nil, fmt.Errorf("%w: session: unknown INDEX_BACKEND %q (want memory, chromem or qdrant)", rag.ErrConfig, b.index)
	}
	return b, nil
}

// IndexBackend returns the configured index backend name.
func (b *EnvBackends) IndexBackend() string { return b.index }

// Qdrant returns the shared qdrant client, or nil for other backends.
func (b *EnvBackends) Qdrant() *qdrant.Client { return b.qdrant }

// Engine builds the embedder and chat model for creds. The token, when set,
// overrides the configured API keys for both.
func (b *EnvBackends) Engine(ctx context.Context, creds Credentials) (*Engine, error) {
	emb, err := embedder.NewFromEnv(ctx, creds.Token)
	if err != nil {
		return nil, err
	}

	pcfg := provider.ConfigFromEnv(creds.Token)
	chat, err := provider.New(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	client, err := generation.NewClient(chat, pcfg.Timeout)
	if err != nil {
		return nil, err
	}

	markup := b.markup
	if markup == "" {
		markup = prompt.MarkupPlain
		if pcfg.Backend == provider.BackendHuggingFace {
			markup = prompt.MarkupZephyr
		}
	}

	return &Engine{
		Embedder:        emb,
		Generator:       generation.NewRetrying(client, b.retries),
		Assembler:       prompt.NewAssembler(markup),
		MaxOutputTokens: pcfg.MaxTokens,
	}, nil
}

// VectorStore returns an empty store of the configured backend.
func (b *EnvBackends) VectorStore(_ context.Context) (rag.VectorStore, error) {
	switch b.index {
	case IndexChromem:
		s, err := rag.NewChromemStore()
		if err != nil {
			return nil, err
		}
		return s, nil
	case IndexQdrant:
		return rag.NewQdrantStore(b.qdrant, b.prefix), nil
	default:
		return rag.NewMemoryStore(), nil
	}
}

// LogSummary records the resolved backend selection.
func (b *EnvBackends) LogSummary(log *slog.Logger) {
	log.Info("session backends",
		slog.String("index", b.index),
		slog.Int("model_retries", b.retries),
		slog.String("prompt_markup", string(b.markup)),
	)
}

// Close releases the shared qdrant client, if any.
func (b *EnvBackends) Close() error {
	if b.qdrant == nil {
		return nil
	}
	if err := b.qdrant.Close(); err != nil {
		return fmt.Errorf("session: close qdrant client: %w", err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
