// Package provider selects and constructs the chat model that answers
// questions and writes quizzes. Every backend is exposed as an eino
// model.BaseChatModel so the generation layer never depends on a vendor SDK.
// Supported backends: HuggingFace Inference, Ollama, OpenAI, Azure OpenAI,
// Volcengine Ark, Google Gemini.
package provider

import (
	"time"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendHuggingFace selects the HuggingFace Inference text-generation API.
	BackendHuggingFace Backend = "huggingface"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Sampling defaults. Answers should be near-deterministic and short.
const (
	DefaultMaxTokens         = 512
	DefaultTemperature       = float32(0.1)
	DefaultRepetitionPenalty = float32(1.03)
	DefaultTimeout           = 120 * time.Second
)

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name or repository id (e.g. "HuggingFaceH4/zephyr-7b-beta").
	Model string

	// BaseURL overrides the default API endpoint (required for Azure and Ark).
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	// Unused by Ollama.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32

	// RepetitionPenalty discourages repeated tokens. Only HuggingFace honours it.
	RepetitionPenalty float32

	// Timeout bounds a single generation call. Enforced by the generation client.
	Timeout time.Duration
}
