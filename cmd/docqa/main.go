// Command docqa answers questions about, and writes quizzes from, uploaded PDF
// documents. It provides a CLI (via Cobra) and an HTTP server exposing
// per-document sessions.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
