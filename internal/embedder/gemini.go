package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/54b3r/docqa-go/internal/rag"
)

// GeminiEmbedder implements rag.Embedder using the Gemini embedContent API
// through the official genai client. It is safe for concurrent use.
type GeminiEmbedder struct {
	// models is the genai models service used for EmbedContent calls.
	models *genai.Models
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// dimensions truncates the output vector when > 0.
	dimensions int32
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder backed by the Gemini API.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedder: gemini requires an API key", rag.ErrConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{
		models:     client.Models,
		model:      cfg.Model,
		dimensions: int32(cfg.Dimensions), //nolint:gosec // dimensions are small positive integers
	}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		dims := e.dimensions
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embedder: request failed: %w", rag.ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini embedder: expected %d embeddings, got %d",
			rag.ErrEmbedding, len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: gemini embedder: missing embedding %d", rag.ErrEmbedding, i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
