package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// defaultHuggingFaceURL is the HF Inference router base for hosted models.
const defaultHuggingFaceURL = "https://router.huggingface.co/hf-inference/models"

// HuggingFaceChatModel implements model.BaseChatModel on top of the
// HuggingFace Inference text-generation task. Messages are flattened into a
// single prompt; decoding is greedy (do_sample=false) with a repetition
// penalty. It is safe for concurrent use.
type HuggingFaceChatModel struct {
	baseURL           string
	token             string
	model             string
	maxTokens         int
	temperature       float32
	repetitionPenalty float32
	client            *http.Client
}

// NewHuggingFaceChatModel constructs a HuggingFaceChatModel from cfg.
// Deadlines come from the caller's context, not the HTTP client.
func NewHuggingFaceChatModel(cfg *Config) *HuggingFaceChatModel {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultHuggingFaceURL
	}
	return &HuggingFaceChatModel{
		baseURL:           base,
		token:             strings.TrimSpace(cfg.APIKey),
		model:             cfg.Model,
		maxTokens:         cfg.MaxTokens,
		temperature:       cfg.Temperature,
		repetitionPenalty: cfg.RepetitionPenalty,
		client:            &http.Client{},
	}
}

// hfGenerateRequest is the JSON body sent to the text-generation task.
type hfGenerateRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float32 `json:"temperature"`
	RepetitionPenalty float32 `json:"repetition_penalty,omitempty"`
	DoSample          bool    `json:"do_sample"`
	ReturnFullText    bool    `json:"return_full_text"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// hfGeneration is one element of the text-generation response array.
type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// hfError is the JSON error body returned by the inference API.
type hfError struct {
	Error string `json:"error"`
}

// Generate sends the flattened messages to the model and returns the
// completion as an assistant message.
func (m *HuggingFaceChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (out *schema.Message, err error) {
	maxTokens := m.maxTokens
	temp := m.temperature
	modelName := m.model
	o := model.GetCommonOptions(&model.Options{
		Model:       &modelName,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	}, opts...)

	conf := &model.Config{Model: *o.Model, MaxTokens: *o.MaxTokens, Temperature: *o.Temperature}
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: input, Config: conf})
	defer func() {
		if err != nil {
			_ = callbacks.OnError(ctx, err)
		}
	}()

	payload, err := json.Marshal(hfGenerateRequest{
		Inputs: flatten(input),
		Parameters: hfParameters{
			MaxNewTokens:      *o.MaxTokens,
			Temperature:       *o.Temperature,
			RepetitionPenalty: m.repetitionPenalty,
			DoSample:          false,
			ReturnFullText:    false,
		},
		Options: hfOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/"+*o.Model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.token)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var apiErr hfError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("huggingface: %s", msg)
	}

	var gens []hfGeneration
	if err := json.NewDecoder(resp.Body).Decode(&gens); err != nil {
		return nil, fmt.Errorf("huggingface: decode response: %w", err)
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("huggingface: empty response")
	}

	out = schema.AssistantMessage(gens[0].GeneratedText, nil)
	_ = callbacks.OnEnd(ctx, &model.CallbackOutput{Message: out, Config: conf})
	return out, nil
}

// Stream returns the full completion as a single-element stream; the
// text-generation task is called without token streaming.
func (m *HuggingFaceChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// GetType names the component for eino callbacks.
func (m *HuggingFaceChatModel) GetType() string { return "HuggingFace" }

// IsCallbacksEnabled reports that Generate emits its own callbacks.
func (m *HuggingFaceChatModel) IsCallbacksEnabled() bool { return true }

// flatten joins message contents into one prompt, separated by blank lines.
func flatten(msgs []*schema.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg != nil && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
