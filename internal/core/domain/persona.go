package domain

import (
	"context"
	"time"
)

type PersonaDocument struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
	Text     string `json:"text"`
}

// Chunk is a rune-addressed window of a persona document.
type Chunk struct {
	Index  int    `json:"index"`
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

type Embedding []float32

// IsZero reports whether the embedding carries no usable signal.
func (e Embedding) IsZero() bool {
	for _, v := range e {
		if v != 0 {
			return false
		}
	}
	return true
}

// CacheEntry is the persisted pairing of a persona identity with its chunks and vectors.
// Entries are never compared against the source document once written.
type CacheEntry struct {
	Key        string      `json:"key"`
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
	Chunks     []string    `json:"chunks"`
	Embeddings [][]float32 `json:"embeddings"`
	CreatedAt  time.Time   `json:"created_at"`
}

// PersonaIndex is the loaded, query-ready form of a persona.
type PersonaIndex struct {
	Identity   string
	Path       string
	Model      string
	Chunks     []string
	Embeddings []Embedding
	FromCache  bool
}

func (p *PersonaIndex) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Chunks)
}

// Character is a catalog entry binding a persona name to its document and overrides.
type Character struct {
	ID          string      `yaml:"-"`
	Name        string      `yaml:"name"`
	PersonaFile string      `yaml:"persona_file"`
	Retrieval   FacetConfig `yaml:"retrieval_params"`
}

type personaContextKey struct{}

// WithPersona tags ctx with the persona being served so model calls can log it.
func WithPersona(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, personaContextKey{}, identity)
}

func PersonaFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(personaContextKey{}).(string)
	return identity
}
