package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// validBase returns a Config with sampling settings filled in.
func validBase(b Backend) Config {
	return Config{
		Backend:     b,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	with := func(b Backend, mutate func(*Config)) Config {
		c := validBase(b)
		mutate(&c)
		return c
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── HuggingFace ───────────────────────────────────────────────────────
		{
			name: "huggingface/valid",
			cfg:  with(BackendHuggingFace, func(c *Config) { c.APIKey = "hf_x"; c.Model = "HuggingFaceH4/zephyr-7b-beta" }),
		},
		{
			name:    "huggingface/missing token",
			cfg:     with(BackendHuggingFace, func(c *Config) { c.Model = "m" }),
			wantErr: "X-Model-Token",
		},

		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg:  with(BackendOllama, func(c *Config) { c.Model = "llama3" }),
		},
		{
			name:    "ollama/missing model",
			cfg:     validBase(BackendOllama),
			wantErr: "MODEL_NAME",
		},

		// ── OpenAI / Gemini ───────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg:  with(BackendOpenAI, func(c *Config) { c.APIKey = "sk"; c.Model = "gpt-4o-mini" }),
		},
		{
			name:    "openai/missing api key",
			cfg:     with(BackendOpenAI, func(c *Config) { c.Model = "gpt-4o-mini" }),
			wantErr: "MODEL_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     with(BackendGemini, func(c *Config) { c.APIKey = "k" }),
			wantErr: "MODEL_NAME",
		},

		// ── Azure ─────────────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: with(BackendAzure, func(c *Config) {
				c.APIKey = "key"
				c.BaseURL = "https://my.openai.azure.com"
				c.AzureDeployment = "gpt-4o"
			}),
		},
		{
			name:    "azure/missing endpoint",
			cfg:     with(BackendAzure, func(c *Config) { c.APIKey = "key"; c.AzureDeployment = "gpt-4o" }),
			wantErr: "MODEL_BASE_URL",
		},
		{
			name:    "azure/missing deployment",
			cfg:     with(BackendAzure, func(c *Config) { c.APIKey = "key"; c.BaseURL = "https://x" }),
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name:    "ark/missing endpoint id",
			cfg:     with(BackendArk, func(c *Config) { c.APIKey = "k" }),
			wantErr: "MODEL_NAME",
		},

		// ── Shared ────────────────────────────────────────────────────────────
		{
			name:    "zero max tokens",
			cfg:     with(BackendOllama, func(c *Config) { c.Model = "llama3"; c.MaxTokens = 0 }),
			wantErr: "MODEL_MAX_TOKENS",
		},
		{
			name:    "unknown backend",
			cfg:     validBase("bedrock"),
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !errors.Is(err, rag.ErrConfig) {
				t.Errorf("error must wrap ErrConfig: %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"MODEL_PROVIDER", "MODEL_NAME", "MODEL_API_KEY", "MODEL_MAX_TOKENS",
		"MODEL_TEMPERATURE", "MODEL_REPETITION_PENALTY", "MODEL_TIMEOUT"} {
		t.Setenv(k, "")
	}

	cfg := ConfigFromEnv("  hf_token  ")
	if cfg.Backend != BackendHuggingFace {
		t.Errorf("want huggingface backend, got %q", cfg.Backend)
	}
	if cfg.Model != "HuggingFaceH4/zephyr-7b-beta" {
		t.Errorf("unexpected default model %q", cfg.Model)
	}
	if cfg.APIKey != "hf_token" {
		t.Errorf("token not trimmed: %q", cfg.APIKey)
	}
	if cfg.MaxTokens != 512 || cfg.Temperature != 0.1 || cfg.RepetitionPenalty != 1.03 {
		t.Errorf("unexpected sampling defaults: %+v", cfg)
	}
	if cfg.Timeout != 120*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Timeout)
	}
}

func TestConfigFromEnv_TokenOverridesEnvKey(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("MODEL_API_KEY", "env-key")
	t.Setenv("MODEL_TIMEOUT", "5s")

	if got := ConfigFromEnv("session").APIKey; got != "session" {
		t.Errorf("want session token, got %q", got)
	}
	if got := ConfigFromEnv("").APIKey; got != "env-key" {
		t.Errorf("want env key, got %q", got)
	}
	if got := ConfigFromEnv("").Timeout; got != 5*time.Second {
		t.Errorf("want 5s timeout, got %v", got)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := validBase(BackendHuggingFace)
	if _, err := New(context.Background(), &cfg); !errors.Is(err, rag.ErrConfig) {
		t.Fatalf("want ErrConfig, got %v", err)
	}
}
