// Package pipeline composes retrieval, prompt assembly and generation into
// the two user-facing operations: answering a question and writing a quiz.
// The functions are pure orchestration; they hold no state beyond their
// arguments.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/prompt"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// AnswerK is the number of chunks retrieved for a question.
	AnswerK = 3

	// QuizK is the number of chunks retrieved for a quiz.
	QuizK = 5

	// QuizQuery is the fixed retrieval query used in place of a question
	// when generating a quiz.
	QuizQuery = "Generate a quiz."
)

// ErrEmptyQuestion is returned when AnswerQuestion receives a blank question.
var ErrEmptyQuestion = errors.New("question must not be empty")

// Retriever returns the k chunks most relevant to query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.Chunk, error)
}

// Generator turns a prompt into completion text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Deps bundles the collaborators shared by both operations.
type Deps struct {
	Retriever Retriever
	Generator Generator
	Assembler *prompt.Assembler

	// MaxOutputTokens is the generation limit, used for the prompt budget.
	MaxOutputTokens int

	// ObservePrompt, when set, receives the prompt budget of every call.
	ObservePrompt func(op string, u budget.Usage)
}

// AnswerQuestion retrieves AnswerK chunks for question, fills the Q&A
// template and returns the model's answer.
func AnswerQuestion(ctx context.Context, d Deps, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}

	chunks, err := d.Retriever.Retrieve(ctx, question, AnswerK)
	if err != nil {
		return "", fmt.Errorf("pipeline: retrieve: %w", err)
	}

	p, err := d.Assembler.QA(ctx, chunks, question)
	if err != nil {
		return "", fmt.Errorf("pipeline: %w", err)
	}
	logPrompt(ctx, d, "answer", chunks, p)

	answer, err := d.Generator.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("pipeline: answer: %w", err)
	}
	return answer, nil
}

// GenerateQuiz retrieves QuizK chunks with the fixed quiz query, fills the
// quiz template and returns the model output unmodified. The output is not
// checked for the requested question structure.
func GenerateQuiz(ctx context.Context, d Deps) (string, error) {
	chunks, err := d.Retriever.Retrieve(ctx, QuizQuery, QuizK)
	if err != nil {
		return "", fmt.Errorf("pipeline: retrieve: %w", err)
	}

	p, err := d.Assembler.Quiz(ctx, chunks)
	if err != nil {
		return "", fmt.Errorf("pipeline: %w", err)
	}
	logPrompt(ctx, d, "quiz", chunks, p)

	quiz, err := d.Generator.Generate(ctx, p)
	if err != nil {
		return "", fmt.Errorf("pipeline: quiz: %w", err)
	}
	return quiz, nil
}

// logPrompt records the prompt size estimate for the operation and warns when
// the prompt would crowd out the reply.
func logPrompt(ctx context.Context, d Deps, op string, chunks []rag.Chunk, p string) {
	u := budget.Measure(p, d.MaxOutputTokens, 0)
	if d.ObservePrompt != nil {
		d.ObservePrompt(op, u)
	}

	log := logging.FromContext(ctx)
	log.Debug("prompt assembled",
		slog.String("operation", op),
		slog.Int("chunks", len(chunks)),
		slog.Int("prompt_tokens_est", u.PromptTokens),
	)
	if !u.Fits() {
		log.Warn("prompt may exceed the model context window",
			slog.String("operation", op),
			slog.Int("prompt_tokens_est", u.PromptTokens),
			slog.Int("max_output_tokens", u.MaxOutputTokens),
			slog.Int("window", u.Window),
		)
	}
}
