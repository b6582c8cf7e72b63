package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"
	defaultOllamaModel      = "nomic-embed-text"
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultGeminiModel      = "text-embedding-004"
)

// Config holds the resolved settings for constructing an embedder.
type Config struct {
	// Backend is one of huggingface, ollama, openai, azure, gemini.
	Backend string
	// Model overrides the backend's default embedding model.
	Model string
	// Endpoint overrides the backend's default API base URL.
	Endpoint string
	// APIKey is the backend credential. Not required for ollama.
	APIKey string
	// Dimensions is the requested vector length (0 = model default).
	// Honoured by openai, azure and gemini.
	Dimensions int
	// AzureAPIVersion is the Azure OpenAI REST API version.
	AzureAPIVersion string
}

// ConfigFromEnv resolves an embedder Config from environment variables.
// A non-blank token overrides any API key found in the environment, which is
// how a per-session credential reaches the embedder.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER (default: huggingface)
//  2. EMBEDDING_MODEL overrides the default model for the resolved backend
//  3. token, then EMBEDDING_API_KEY, then MODEL_API_KEY
//  4. EMBEDDING_ENDPOINT overrides the default endpoint
//  5. EMBEDDING_DIMENSIONS overrides the model's default dimensions
func ConfigFromEnv(token string) *Config {
	key := strings.TrimSpace(token)
	if key == "" {
		key = getEnv("EMBEDDING_API_KEY")
	}
	if key == "" {
		key = getEnv("MODEL_API_KEY")
	}
	return &Config{
		Backend:         getEnvOrDefault("EMBEDDING_PROVIDER", "huggingface"),
		Model:           getEnv("EMBEDDING_MODEL"),
		Endpoint:        getEnv("EMBEDDING_ENDPOINT"),
		APIKey:          key,
		Dimensions:      getEnvInt("EMBEDDING_DIMENSIONS", 0),
		AzureAPIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
	}
}

// NewFromEnv constructs a rag.Embedder from environment variables, with token
// taking precedence over configured API keys.
func NewFromEnv(ctx context.Context, token string) (rag.Embedder, error) {
	return New(ctx, ConfigFromEnv(token))
}

// New constructs a rag.Embedder from an explicit Config. Missing credentials
// fail with rag.ErrConfig.
func New(ctx context.Context, cfg *Config) (rag.Embedder, error) {
	switch cfg.Backend {
	case "huggingface":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: embedder: huggingface requires a token (X-Model-Token, EMBEDDING_API_KEY or MODEL_API_KEY)", rag.ErrConfig)
		}
		return NewHuggingFaceEmbedder(&HuggingFaceConfig{
			BaseURL: cfg.Endpoint,
			Token:   cfg.APIKey,
			Model:   orDefault(cfg.Model, defaultHuggingFaceModel),
		}), nil

	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  orDefault(cfg.Endpoint, "http://localhost:11434"),
			Model: orDefault(cfg.Model, defaultOllamaModel),
		}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: embedder: openai requires EMBEDDING_API_KEY or MODEL_API_KEY", rag.ErrConfig)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    orDefault(cfg.Endpoint, "https://api.openai.com/v1"),
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
		}), nil

	case "azure":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: embedder: azure requires EMBEDDING_API_KEY or MODEL_API_KEY", rag.ErrConfig)
		}
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("%w: embedder: azure requires EMBEDDING_ENDPOINT", rag.ErrConfig)
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultOpenAIModel),
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.AzureAPIVersion,
		}), nil

	case "gemini":
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      orDefault(cfg.Model, defaultGeminiModel),
			Dimensions: cfg.Dimensions,
		})

	default:
		return nil, fmt.Errorf("%w: embedder: unknown backend %q (valid: huggingface, ollama, openai, azure, gemini)", rag.ErrConfig, cfg.Backend)
	}
}

// orDefault returns v, or fallback when v is empty.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
