package ingestion

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func mustChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap)
	if err != nil {
		t.Fatalf("NewChunker(%d, %d): %v", size, overlap, err)
	}
	return c
}

func TestNewChunker_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"defaults", DefaultChunkSize, DefaultChunkOverlap, false},
		{"zero overlap", 10, 0, false},
		{"overlap equals size", 10, 10, true},
		{"overlap exceeds size", 10, 11, true},
		{"negative overlap", 10, -1, true},
		{"zero size", 0, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewChunker(tc.size, tc.overlap)
			if tc.wantErr && !errors.Is(err, rag.ErrConfig) {
				t.Errorf("want ErrConfig, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSplit_SentenceBoundary(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, 20, 5)
	got := c.Split([]TextUnit{{Page: 1, Text: "The sky is blue. Grass is green."}})

	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d: %+v", len(got), got)
	}
	if got[0].Text != "The sky is blue. " {
		t.Errorf("chunk 0: got %q", got[0].Text)
	}
	if got[1].Text != "lue. Grass is green." {
		t.Errorf("chunk 1: got %q", got[1].Text)
	}
	if got[0].End-got[1].Start != 5 {
		t.Errorf("want overlap 5, got %d", got[0].End-got[1].Start)
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, DefaultChunkSize, DefaultChunkOverlap)
	got := c.Split([]TextUnit{{Page: 1, Text: "short page"}})
	if len(got) != 1 || got[0].Text != "short page" {
		t.Fatalf("want one chunk with the whole text, got %+v", got)
	}
	if got[0].Start != 0 || got[0].End != len("short page") {
		t.Errorf("unexpected offsets [%d, %d)", got[0].Start, got[0].End)
	}
}

func TestSplit_HardSplitWithoutSeparators(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, 10, 3)
	text := strings.Repeat("x", 25)
	got := c.Split([]TextUnit{{Page: 1, Text: text}})

	wantStarts := []int{0, 7, 14, 21}
	if len(got) != len(wantStarts) {
		t.Fatalf("want %d chunks, got %d", len(wantStarts), len(got))
	}
	for i, ch := range got {
		if ch.Start != wantStarts[i] {
			t.Errorf("chunk %d: want start %d, got %d", i, wantStarts[i], ch.Start)
		}
	}
	if got[len(got)-1].End != 25 {
		t.Errorf("last chunk must end at text end, got %d", got[len(got)-1].End)
	}
}

func TestSplit_Invariants(t *testing.T) {
	t.Parallel()

	para := "Retrieval augmented generation grounds answers in a document.\n" +
		"Each chunk is embedded and stored in a vector index. "
	units := []TextUnit{
		{Page: 1, Text: strings.TrimSpace(strings.Repeat(para, 8))},
		{Page: 2, Text: strings.TrimSpace(strings.Repeat("Naïve café résumé text with accents. ", 20))},
		{Page: 3, Text: strings.TrimSpace(strings.Repeat(para, 5))},
	}

	for _, cfg := range []struct{ size, overlap int }{{200, 20}, {97, 13}, {1000, 100}, {50, 0}} {
		c := mustChunker(t, cfg.size, cfg.overlap)
		chunks := c.Split(units)
		if len(chunks) == 0 {
			t.Fatalf("size=%d: no chunks", cfg.size)
		}

		for i, ch := range chunks {
			if ch.Index != i {
				t.Errorf("size=%d chunk %d: index %d", cfg.size, i, ch.Index)
			}
			if n := len([]rune(ch.Text)); n > cfg.size {
				t.Errorf("size=%d chunk %d: %d runes exceeds bound", cfg.size, i, n)
			}
			if n := len([]rune(ch.Text)); n != ch.End-ch.Start {
				t.Errorf("size=%d chunk %d: text length %d != offsets %d", cfg.size, i, n, ch.End-ch.Start)
			}
			if ch.PageStart > ch.PageEnd {
				t.Errorf("size=%d chunk %d: page range %d-%d", cfg.size, i, ch.PageStart, ch.PageEnd)
			}
			if i == 0 {
				continue
			}
			prev := chunks[i-1]
			if prev.End-ch.Start != cfg.overlap {
				t.Errorf("size=%d chunk %d: overlap %d, want %d", cfg.size, i, prev.End-ch.Start, cfg.overlap)
			}
			prevRunes := []rune(prev.Text)
			shared := string(prevRunes[len(prevRunes)-cfg.overlap:])
			if !strings.HasPrefix(ch.Text, shared) {
				t.Errorf("size=%d chunk %d: does not start with previous tail %q", cfg.size, i, shared)
			}
		}

		if got := chunks[0].PageStart; got != 1 {
			t.Errorf("size=%d: first chunk page %d", cfg.size, got)
		}
		if got := chunks[len(chunks)-1].PageEnd; got != 3 {
			t.Errorf("size=%d: last chunk page %d", cfg.size, got)
		}
	}
}

func TestSplit_OverlapRestartsAfterBlankWindow(t *testing.T) {
	t.Parallel()

	// With size 4 and overlap 1 the window [6,10) is all spaces and dropped.
	c := mustChunker(t, 4, 1)
	got := c.Split([]TextUnit{{Page: 1, Text: "abcd        wxyz"}})

	want := []struct{ start, end int }{{0, 4}, {3, 7}, {9, 13}, {12, 16}}
	if len(got) != len(want) {
		t.Fatalf("want %d chunks, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Index != i || got[i].Start != w.start || got[i].End != w.end {
			t.Errorf("chunk %d: want index %d [%d,%d), got index %d [%d,%d)",
				i, i, w.start, w.end, got[i].Index, got[i].Start, got[i].End)
		}
	}

	// Kept neighbours of the dropped window share nothing.
	if got[1].End > got[2].Start {
		t.Errorf("chunks 1 and 2 unexpectedly overlap: %d > %d", got[1].End, got[2].Start)
	}
	// Before and after the gap the overlap holds.
	for _, i := range []int{1, 3} {
		if got[i-1].End-got[i].Start != 1 {
			t.Errorf("chunk %d: overlap %d, want 1", i, got[i-1].End-got[i].Start)
		}
	}
	if got[3].Text != "wxyz" {
		t.Errorf("last chunk text %q", got[3].Text)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	units := []TextUnit{{Page: 1, Text: strings.Repeat("alpha beta gamma\n", 100)}}
	c := mustChunker(t, 120, 30)
	first := c.Split(units)
	second := c.Split(units)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("Split is not deterministic")
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()

	c := mustChunker(t, 100, 10)
	if got := c.Split(nil); len(got) != 0 {
		t.Errorf("nil units: want no chunks, got %d", len(got))
	}
	if got := c.Split([]TextUnit{{Page: 1, Text: "   \n\n  "}}); len(got) != 0 {
		t.Errorf("whitespace page: want no chunks, got %d", len(got))
	}
}
