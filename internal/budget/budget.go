// Package budget estimates prompt sizes against a model context window.
// Because docqa supports multiple LLM backends with different tokenizers,
// this package uses a conservative character-based heuristic:
// 1 token ≈ 4 characters (English prose).
package budget

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultContextWindow is the assumed model context size in tokens.
	// Matches 8k-context instruction models such as zephyr-7b.
	DefaultContextWindow = 8192
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// Usage is the estimated token footprint of one generation call.
type Usage struct {
	// PromptTokens is the estimated size of the prompt.
	PromptTokens int
	// MaxOutputTokens is the generation limit reserved for the reply.
	MaxOutputTokens int
	// Window is the model context size.
	Window int
}

// Measure estimates prompt and returns its usage against window, reserving
// maxOutput tokens for the reply. window <= 0 uses DefaultContextWindow.
func Measure(prompt string, maxOutput, window int) Usage {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return Usage{
		PromptTokens:    Estimate(prompt),
		MaxOutputTokens: maxOutput,
		Window:          window,
	}
}

// Fits reports whether the prompt plus the reserved output fit the window.
func (u Usage) Fits() bool {
	return u.PromptTokens+u.MaxOutputTokens <= u.Window
}
