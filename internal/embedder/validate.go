package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"zephyr",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is the startup pre-flight check for the embedding configuration.
// It fails on an unknown backend, warns when no credential is configured for
// a backend that needs one (a per-session token may still supply it), and
// warns when EMBEDDING_MODEL looks like a chat model.
func Validate(log *slog.Logger) error {
	cfg := ConfigFromEnv("")

	switch cfg.Backend {
	case "huggingface", "openai", "azure", "gemini":
		if cfg.APIKey == "" {
			log.Warn("embedder: no API key configured, sessions must supply X-Model-Token",
				slog.String("backend", cfg.Backend),
			)
		}
		if cfg.Backend == "azure" && cfg.Endpoint == "" {
			return fmt.Errorf("%w: embedder: azure requires EMBEDDING_ENDPOINT", rag.ErrConfig)
		}
	case "ollama":
	default:
		return fmt.Errorf("%w: embedder: unknown backend %q (valid: huggingface, ollama, openai, azure, gemini)", rag.ErrConfig, cfg.Backend)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. sentence-transformers/all-MiniLM-L6-v2, nomic-embed-text"),
		)
	}

	return nil
}

// checkTexts rejects an empty batch or any blank text before a backend call.
func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: embedder: no texts to embed", rag.ErrEmbedding)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: embedder: text %d is blank", rag.ErrEmbedding, i)
		}
	}
	return nil
}
