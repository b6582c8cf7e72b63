// Package ingestion turns an uploaded document into retrieval-ready chunks.
// PDFIngestor extracts per-page text from PDF bytes and Chunker splits that
// text into bounded, overlapping passages for the vector index.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Document is an uploaded file held in memory. It is transient: nothing
// derived from it is persisted beyond the session index.
type Document struct {
	// Name is the client-supplied filename, used only for logging.
	Name string

	// Data is the raw file content.
	Data []byte
}

// TextUnit is the extracted text of one page.
type TextUnit struct {
	// Page is the 1-based page number.
	Page int

	// Text is the plain text of the page.
	Text string
}

// PDFConfig holds the configuration for a PDFIngestor.
type PDFConfig struct {
	// TempDir is the directory for the transient on-disk copy of the upload.
	// Defaults to os.TempDir() when empty.
	TempDir string

	// Logger receives extraction diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// PDFIngestor extracts text from PDF documents. The parser works on file
// paths, so each document is written to a temp file that is removed on every
// exit path.
type PDFIngestor struct {
	// tempDir is where the transient copy is written.
	tempDir string

	// logger receives extraction diagnostics.
	logger *slog.Logger

	// extract returns the text of every page of the PDF at path, in order.
	// Tests substitute it; production uses extractPages.
	extract func(path string) ([]string, error)
}

// NewPDFIngestor constructs a PDFIngestor from cfg. A nil cfg uses defaults.
func NewPDFIngestor(cfg *PDFConfig) *PDFIngestor {
	if cfg == nil {
		cfg = &PDFConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFIngestor{
		tempDir: cfg.TempDir,
		logger:  logger,
		extract: extractPages,
	}
}

// Ingest extracts the text of doc page by page. Pages without extractable
// text are skipped, so an image-only PDF yields no units and no error.
// Unreadable input fails with rag.ErrIngest.
func (p *PDFIngestor) Ingest(ctx context.Context, doc Document) ([]TextUnit, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: ingestion: %q is empty", rag.ErrIngest, doc.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(p.tempDir, "docqa-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("ingestion: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(doc.Data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("ingestion: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("ingestion: close temp file: %w", err)
	}

	pages, err := p.extract(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: ingestion: %q: %w", rag.ErrIngest, doc.Name, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: ingestion: %q has no pages", rag.ErrIngest, doc.Name)
	}

	units := make([]TextUnit, 0, len(pages))
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, TextUnit{Page: i + 1, Text: text})
	}

	p.logger.Debug("pdf extracted",
		slog.String("document", doc.Name),
		slog.Int("pages", len(pages)),
		slog.Int("text_pages", len(units)),
	)
	return units, nil
}

// extractPages opens the PDF at path and returns the plain text of every page.
// Parser panics on malformed input are converted into errors.
func extractPages(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
