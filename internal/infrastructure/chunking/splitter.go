package chunking

import "github.com/kirillkom/persona-rag/internal/core/domain"

const (
	DefaultChunkSize = 700
	DefaultOverlap   = 120
)

// Splitter cuts text into fixed-size rune windows with a fixed backward overlap.
// Boundaries ignore sentences and paragraphs.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if err := validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}, nil
}

func (s *Splitter) Split(text string) ([]domain.Chunk, error) {
	return Chunk(text, s.ChunkSize, s.Overlap)
}

// Chunk emits text[offset:offset+size] windows, advancing by size-overlap until the
// window reaches the end of text. The last chunk may be shorter than size.
func Chunk(text string, size, overlap int) ([]domain.Chunk, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	out := make([]domain.Chunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, domain.Chunk{
			Index:  len(out),
			Offset: start,
			Text:   string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return domain.NewError(domain.ErrConfiguration, "chunking", "chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return domain.NewError(domain.ErrConfiguration, "chunking",
			"overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size)
	}
	return nil
}
