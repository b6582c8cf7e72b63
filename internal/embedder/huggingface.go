package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// defaultHuggingFaceURL is the HF Inference router base for hosted models.
const defaultHuggingFaceURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFaceEmbedder implements rag.Embedder using the HuggingFace Inference
// feature-extraction pipeline. Sentence-transformer models return one pooled
// vector per input. It is safe for concurrent use.
type HuggingFaceEmbedder struct {
	// baseURL is the inference API base; the model id is appended.
	baseURL string
	// token is the HF access token sent as a Bearer credential.
	token string
	// model is the repository id (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	model string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// HuggingFaceConfig holds the settings for constructing a HuggingFaceEmbedder.
type HuggingFaceConfig struct {
	// BaseURL overrides the inference API base. Defaults to the HF router.
	BaseURL string
	// Token is the HF access token. Surrounding whitespace is trimmed.
	Token string
	// Model is the repository id of the embedding model.
	Model string
}

// NewHuggingFaceEmbedder constructs a HuggingFaceEmbedder from the given config.
func NewHuggingFaceEmbedder(cfg *HuggingFaceConfig) *HuggingFaceEmbedder {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultHuggingFaceURL
	}
	return &HuggingFaceEmbedder{
		baseURL: base,
		token:   strings.TrimSpace(cfg.Token),
		model:   cfg.Model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// hfEmbedRequest is the JSON body sent to the feature-extraction pipeline.
type hfEmbedRequest struct {
	Inputs  []string         `json:"inputs"`
	Options hfRequestOptions `json:"options"`
}

// hfRequestOptions asks the API to block while a cold model loads instead of
// returning 503.
type hfRequestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// hfErrorResponse is the JSON error body returned by the inference API.
type hfErrorResponse struct {
	Error string `json:"error"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(hfEmbedRequest{
		Inputs:  texts,
		Options: hfRequestOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: huggingface embedder: marshal request: %w", rag.ErrEmbedding, err)
	}

	url := e.baseURL + "/" + e.model + "/pipeline/feature-extraction"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: huggingface embedder: create request: %w", rag.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: huggingface embedder: request failed: %w", rag.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var apiErr hfErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, fmt.Errorf("%w: huggingface embedder: %s", rag.ErrEmbedding, msg)
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("%w: huggingface embedder: decode response: %w", rag.ErrEmbedding, err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: huggingface embedder: expected %d embeddings, got %d",
			rag.ErrEmbedding, len(texts), len(embeddings))
	}

	return embeddings, nil
}
