package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/session"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// docFlags are shared by the one-shot ask and quiz commands.
type docFlags struct {
	file  string
	token string
}

func (f *docFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "PDF document to analyze (required)")
	cmd.Flags().StringVar(&f.token, "token", "", "Model credential for this run (default: MODEL_API_KEY)")
	_ = cmd.MarkFlagRequired("file")
}

// NewAskCmd constructs the `docqa ask` command, which indexes a PDF and
// answers a single question about it.
func NewAskCmd() *cobra.Command {
	var flags docFlags

	cmd := &cobra.Command{
		Use:   "ask --file doc.pdf [question]",
		Short: "Answer a question about a PDF document",
		Long: `Index a PDF and answer one question grounded in its content.

The answer is printed to stdout. When the document does not contain the
answer the model is instructed to say it does not know.

Examples:
  docqa ask --file paper.pdf "what dataset was used?"
  MODEL_PROVIDER=ollama docqa ask -f notes.pdf "summarise chapter 2"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShot(cmd.Context(), &flags, func(ctx context.Context, m *session.Manager, id string) (string, error) {
				return m.Ask(ctx, id, args[0])
			}, cmd)
		},
	}
	flags.register(cmd)

	return cmd
}

// NewQuizCmd constructs the `docqa quiz` command, which indexes a PDF and
// writes a multiple-choice quiz from it.
func NewQuizCmd() *cobra.Command {
	var flags docFlags

	cmd := &cobra.Command{
		Use:   "quiz --file doc.pdf",
		Short: "Generate a multiple-choice quiz from a PDF document",
		Long: `Index a PDF and generate a three-question multiple-choice quiz from it.

The model output is printed unmodified.

Examples:
  docqa quiz --file lecture.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOneShot(cmd.Context(), &flags, func(ctx context.Context, m *session.Manager, id string) (string, error) {
				return m.Quiz(ctx, id)
			}, cmd)
		},
	}
	flags.register(cmd)

	return cmd
}

// runOneShot analyzes the document into a throwaway session, runs op and
// prints its result. No transcript is kept.
func runOneShot(ctx context.Context, flags *docFlags, op func(context.Context, *session.Manager, string) (string, error), cmd *cobra.Command) error {
	log := logging.New()
	ctx = logging.WithLogger(ctx, log)

	flush, _ := tracing.Install(tracing.ConfigFromEnv())
	defer flush()

	data, err := os.ReadFile(flags.file)
	if err != nil {
		return fmt.Errorf("%s: read document: %w", cmd.Name(), err)
	}

	backends, err := session.NewEnvBackends()
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	defer func() { _ = backends.Close() }()

	sessions, err := buildManager(backends, nil, nil, log)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	defer func() { _ = sessions.Close() }()

	doc := ingestion.Document{Name: filepath.Base(flags.file), Data: data}
	sess, err := sessions.Analyze(ctx, "", doc, session.Credentials{Token: flags.token})
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	out, err := op(ctx, sessions, sess.ID())
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
