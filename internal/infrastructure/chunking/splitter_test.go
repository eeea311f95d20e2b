package chunking

import (
	"strings"
	"testing"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

func TestChunkScenarioOffsets(t *testing.T) {
	text := strings.Repeat("abcdefghij", 150)

	chunks, err := Chunk(text, 700, 120)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantOffsets := []int{0, 580, 1160}
	wantLens := []int{700, 700, 340}
	for i, c := range chunks {
		if c.Offset != wantOffsets[i] {
			t.Fatalf("chunk %d: expected offset %d, got %d", i, wantOffsets[i], c.Offset)
		}
		if len([]rune(c.Text)) != wantLens[i] {
			t.Fatalf("chunk %d: expected len %d, got %d", i, wantLens[i], len([]rune(c.Text)))
		}
		if c.Text != text[wantOffsets[i]:wantOffsets[i]+wantLens[i]] {
			t.Fatalf("chunk %d: text does not match source window", i)
		}
		if c.Index != i {
			t.Fatalf("chunk %d: unexpected index %d", i, c.Index)
		}
	}
}

func TestChunkCoverageReconstructsText(t *testing.T) {
	texts := []string{
		"a",
		"short",
		strings.Repeat("persona voice, ", 97),
		"многобайтовый текст с юникодом " + strings.Repeat("é", 33),
		"  leading and trailing whitespace is kept  \n",
	}
	params := [][2]int{{1, 0}, {2, 1}, {5, 0}, {7, 3}, {64, 63}, {700, 120}}

	for _, text := range texts {
		for _, p := range params {
			chunks, err := Chunk(text, p[0], p[1])
			if err != nil {
				t.Fatalf("Chunk(size=%d, overlap=%d) error = %v", p[0], p[1], err)
			}
			if got := reconstruct(chunks); got != text {
				t.Fatalf("size=%d overlap=%d: reconstruction mismatch\nwant %q\ngot  %q", p[0], p[1], text, got)
			}
		}
	}
}

func TestChunkEmptyText(t *testing.T) {
	chunks, err := Chunk("", 10, 2)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestChunkRejectsInvalidParams(t *testing.T) {
	cases := [][2]int{{0, 0}, {-1, 0}, {10, 10}, {10, 11}, {10, -1}}
	for _, c := range cases {
		if _, err := Chunk("text", c[0], c[1]); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("size=%d overlap=%d: expected configuration error, got %v", c[0], c[1], err)
		}
		if _, err := NewSplitter(c[0], c[1]); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("NewSplitter(%d, %d): expected configuration error, got %v", c[0], c[1], err)
		}
	}
}

func TestSplitterUsesConfiguredWindow(t *testing.T) {
	s, err := NewSplitter(4, 1)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}
	chunks, err := s.Split("abcdefghij")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	got := make([]string, len(chunks))
	for i, c := range chunks {
		got[i] = c.Text
	}
	want := []string{"abcd", "defg", "ghij"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func reconstruct(chunks []domain.Chunk) string {
	var out []rune
	for _, c := range chunks {
		r := []rune(c.Text)
		skip := len(out) - c.Offset
		if skip < 0 {
			return "<gap>"
		}
		out = append(out, r[skip:]...)
	}
	return string(out)
}
