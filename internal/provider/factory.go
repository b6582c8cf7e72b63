package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default model names per backend.
var defaultModels = map[Backend]string{
	BackendHuggingFace: "HuggingFaceH4/zephyr-7b-beta",
	BackendOllama:      "llama3",
	BackendOpenAI:      "gpt-4o-mini",
	BackendGemini:      "gemini-1.5-flash",
}

// ConfigFromEnv resolves a provider Config from environment variables.
// A non-blank token overrides MODEL_API_KEY; surrounding whitespace is trimmed.
//
// Environment variables:
//
//	MODEL_PROVIDER            = huggingface | ollama | openai | azure | ark | gemini (default: huggingface)
//	MODEL_NAME                model or repository id (per-backend default)
//	MODEL_BASE_URL            endpoint override; required for azure and ark
//	MODEL_API_KEY             credential; unused by ollama
//	AZURE_OPENAI_DEPLOYMENT   deployment name (azure)
//	AZURE_OPENAI_API_VERSION  REST API version (azure, default: 2024-02-01)
//
//	Shared: MODEL_MAX_TOKENS (default: 512), MODEL_TEMPERATURE (default: 0.1),
//	        MODEL_REPETITION_PENALTY (default: 1.03), MODEL_TIMEOUT (default: 120s)
func ConfigFromEnv(token string) *Config {
	backend := Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendHuggingFace)))

	key := strings.TrimSpace(token)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("MODEL_API_KEY"))
	}

	return &Config{
		Backend:           backend,
		Model:             getEnvOrDefault("MODEL_NAME", defaultModels[backend]),
		BaseURL:           os.Getenv("MODEL_BASE_URL"),
		APIKey:            key,
		AzureDeployment:   os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
		AzureAPIVersion:   getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		MaxTokens:         getEnvInt("MODEL_MAX_TOKENS", DefaultMaxTokens),
		Temperature:       getEnvFloat32("MODEL_TEMPERATURE", DefaultTemperature),
		RepetitionPenalty: getEnvFloat32("MODEL_REPETITION_PENALTY", DefaultRepetitionPenalty),
		Timeout:           getEnvDuration("MODEL_TIMEOUT", DefaultTimeout),
	}
}

// NewFromEnv constructs a chat model from environment variables, with token
// taking precedence over MODEL_API_KEY.
func NewFromEnv(ctx context.Context, token string) (model.BaseChatModel, error) {
	return New(ctx, ConfigFromEnv(token))
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error before the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendHuggingFace:
		return NewHuggingFaceChatModel(cfg), nil
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendArk:
		return newArk(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: provider: unknown backend %q", rag.ErrConfig, cfg.Backend)
	}
}

// Validate reports missing or inconsistent settings for the selected backend.
// Every failure wraps rag.ErrConfig and names the env var to set.
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: provider: MODEL_MAX_TOKENS must be positive", rag.ErrConfig)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("%w: provider: MODEL_TEMPERATURE must not be negative", rag.ErrConfig)
	}

	switch c.Backend {
	case BackendHuggingFace:
		if c.APIKey == "" {
			return fmt.Errorf("%w: provider: huggingface requires a token (X-Model-Token or MODEL_API_KEY)", rag.ErrConfig)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: provider: MODEL_NAME is required for huggingface backend", rag.ErrConfig)
		}
	case BackendOllama:
		if c.Model == "" {
			return fmt.Errorf("%w: provider: MODEL_NAME is required for ollama backend", rag.ErrConfig)
		}
	case BackendOpenAI, BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("%w: provider: MODEL_API_KEY is required for %s backend", rag.ErrConfig, c.Backend)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: provider: MODEL_NAME is required for %s backend", rag.ErrConfig, c.Backend)
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("%w: provider: MODEL_API_KEY is required for azure backend", rag.ErrConfig)
		}
		if c.BaseURL == "" {
			return fmt.Errorf("%w: provider: MODEL_BASE_URL (Azure endpoint) is required for azure backend", rag.ErrConfig)
		}
		if c.AzureDeployment == "" {
			return fmt.Errorf("%w: provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend", rag.ErrConfig)
		}
	case BackendArk:
		if c.APIKey == "" {
			return fmt.Errorf("%w: provider: MODEL_API_KEY is required for ark backend", rag.ErrConfig)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: provider: MODEL_NAME (Ark endpoint id) is required for ark backend", rag.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: provider: unknown backend %q (valid: huggingface, ollama, openai, azure, ark, gemini)",
			rag.ErrConfig, c.Backend)
	}
	return nil
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
