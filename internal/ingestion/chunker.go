package ingestion

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// DefaultChunkSize is the maximum chunk length in runes.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of runes shared by adjacent chunks.
	DefaultChunkOverlap = 100
)

// pageSeparator joins page texts; a page boundary reads as a paragraph break.
const pageSeparator = "\n\n"

// separators are tried coarsest first when choosing where a chunk ends.
var separators = [][]rune{[]rune("\n\n"), []rune("\n"), []rune(" ")}

// Chunker splits page text into bounded, overlapping chunks. It is stateless
// and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker returns a Chunker producing chunks of at most size runes, with
// adjacent chunks sharing exactly overlap runes as described on Split.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: ingestion: chunk size must be positive, got %d", rag.ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: ingestion: chunk overlap must be in [0, %d), got %d", rag.ErrConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by adjacent chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split joins units and cuts the result into chunks. Each window ends after
// the last paragraph break, line break, or space that still leaves room for
// the overlap; a window with none of these is cut at the size limit.
// Whitespace-only chunks are dropped. Adjacent chunks share exactly overlap
// runes, except across a dropped chunk: the kept chunks on either side of it
// may share fewer runes or none, and the guarantee resumes from the next kept
// chunk. Chunk indices stay contiguous. The same input always yields the same
// chunks.
func (c *Chunker) Split(units []TextUnit) []rag.Chunk {
	if len(units) == 0 {
		return nil
	}

	var b strings.Builder
	starts := make([]int, len(units))
	offset := 0
	for i, u := range units {
		if i > 0 {
			b.WriteString(pageSeparator)
			offset += len([]rune(pageSeparator))
		}
		starts[i] = offset
		b.WriteString(u.Text)
		offset += len([]rune(u.Text))
	}
	text := []rune(b.String())
	n := len(text)

	pageAt := func(pos int) int {
		i := sort.Search(len(starts), func(i int) bool { return starts[i] > pos }) - 1
		if i < 0 {
			i = 0
		}
		return units[i].Page
	}

	var chunks []rag.Chunk
	for start := 0; start < n; {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakPoint(text, start, end)
		}

		if s := string(text[start:end]); strings.TrimSpace(s) != "" {
			chunks = append(chunks, rag.Chunk{
				Index:     len(chunks),
				Text:      s,
				Start:     start,
				End:       end,
				PageStart: pageAt(start),
				PageEnd:   pageAt(end - 1),
			})
		}

		if end == n {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// breakPoint returns the chunk end for the window text[start:limit]: just
// after the last occurrence of the coarsest separator found, provided the next
// chunk would still start after start and the chunk is not blank. Otherwise it
// returns limit.
func (c *Chunker) breakPoint(text []rune, start, limit int) int {
	// A separator only counts once the window holds some visible text.
	first := start
	for first < limit && unicode.IsSpace(text[first]) {
		first++
	}

	for _, sep := range separators {
		for pos := limit - len(sep); pos > first; pos-- {
			end := pos + len(sep)
			if end-c.overlap <= start {
				break
			}
			if slices.Equal(text[pos:end], sep) {
				return end
			}
		}
	}
	return limit
}
