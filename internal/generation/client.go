// Package generation sends assembled prompts to a chat model and returns the
// raw completion text. Client classifies failures into rag.ErrGeneration and
// rag.ErrGenerationTimeout and fails fast; Retrying adds opt-in bounded
// exponential backoff on top of any Generator.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Generator turns a prompt into completion text.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client implements Generator over an eino chat model. Sampling parameters
// are fixed when the model is constructed; Client only adds the per-call
// timeout and error classification.
type Client struct {
	// model is the chat model that produces completions.
	model model.BaseChatModel
	// timeout bounds a single Generate call; zero disables it.
	timeout time.Duration
}

// NewClient returns a Client for m. timeout <= 0 means no per-call limit
// beyond the caller's context.
func NewClient(m model.BaseChatModel, timeout time.Duration) (*Client, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: generation: model must not be nil", rag.ErrConfig)
	}
	return &Client{model: m, timeout: timeout}, nil
}

// Generate sends prompt as a single user message and returns the model's
// reply. A deadline fails with rag.ErrGenerationTimeout; any other backend
// failure fails with rag.ErrGeneration.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "docqa-generate",
		Component: components.ComponentOfChatModel,
	})

	start := time.Now()
	msg, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %w", rag.ErrGenerationTimeout, time.Since(start).Round(time.Millisecond), err)
		}
		return "", fmt.Errorf("%w: %w", rag.ErrGeneration, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: model returned no message", rag.ErrGeneration)
	}

	logging.FromContext(ctx).Debug("generation complete",
		slog.Duration("duration", time.Since(start)),
		slog.Int("output_chars", len(msg.Content)),
	)
	return msg.Content, nil
}
