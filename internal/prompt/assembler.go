package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/rag"
)

// contextSeparator joins retrieved chunks in rank order.
const contextSeparator = "\n\n"

// Markup selects how template text is framed for the model.
type Markup string

const (
	// MarkupPlain emits the instruction, context and question as plain text.
	// Suitable for chat-completion backends.
	MarkupPlain Markup = "plain"
	// MarkupZephyr wraps the prompt in <|system|>/<|user|>/<|assistant|>
	// turns for raw text-generation endpoints serving zephyr-style models.
	MarkupZephyr Markup = "zephyr"
)

// Assembler builds Q&A and quiz prompts from retrieved chunks. It is
// immutable and safe for concurrent use. Chunk text is inserted as is, so
// instructions embedded in a document reach the model unfiltered.
type Assembler struct {
	qa   prompt.ChatTemplate
	quiz prompt.ChatTemplate
}

// NewAssembler returns an Assembler for the given markup. Unknown values fall
// back to MarkupPlain.
func NewAssembler(m Markup) *Assembler {
	qa, quiz := qaPlain, quizPlain
	if m == MarkupZephyr {
		qa, quiz = qaZephyr, quizZephyr
	}
	return &Assembler{
		qa:   prompt.FromMessages(schema.FString, schema.UserMessage(qa)),
		quiz: prompt.FromMessages(schema.FString, schema.UserMessage(quiz)),
	}
}

// QA fills the question-answering template with chunks and the verbatim
// question.
func (a *Assembler) QA(ctx context.Context, chunks []rag.Chunk, question string) (string, error) {
	return render(ctx, a.qa, map[string]any{
		"context":  FormatContext(chunks),
		"question": question,
	})
}

// Quiz fills the quiz template with chunks and the fixed quiz topic.
func (a *Assembler) Quiz(ctx context.Context, chunks []rag.Chunk) (string, error) {
	return render(ctx, a.quiz, map[string]any{
		"context": FormatContext(chunks),
		"topic":   QuizTopic,
	})
}

// FormatContext joins chunk texts in the given order, separated by a blank
// line.
func FormatContext(chunks []rag.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, contextSeparator)
}

// render formats tpl and returns the content of its single message.
func render(ctx context.Context, tpl prompt.ChatTemplate, vars map[string]any) (string, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("prompt: format template: %w", err)
	}
	if len(msgs) != 1 {
		return "", fmt.Errorf("prompt: template produced %d messages, want 1", len(msgs))
	}
	return msgs[0].Content, nil
}
