package ports

import (
	"context"
	"time"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

// Embedder builds vectors for chunk batches and query text with a single fixed model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Reranker scores (query, passage) pairs with a cross-encoder in one batched call.
// The returned slice is index-aligned with passages.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
	Model() string
}

// Chunker splits persona text into overlapping windows.
type Chunker interface {
	Split(text string) ([]domain.Chunk, error)
}

// PersonaSource resolves persona identities to documents on disk.
type PersonaSource interface {
	Resolve(ctx context.Context, identity string) (string, error)
	Read(ctx context.Context, path string) (*domain.PersonaDocument, error)
	List(ctx context.Context) ([]string, error)
}

// EmbeddingCache persists chunk/vector pairs keyed by persona identity.
// Get returns (nil, nil) on a miss.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) (*domain.CacheEntry, error)
	Put(ctx context.Context, entry *domain.CacheEntry) error
}

// CharacterCatalog exposes per-character persona bindings and retrieval overrides.
// Lookup returns (nil, nil) when the character has no catalog entry.
type CharacterCatalog interface {
	Lookup(ctx context.Context, name string) (*domain.Character, error)
	List(ctx context.Context) ([]string, error)
}

// RetrievalObserver receives engine telemetry. Implementations must be safe for concurrent use.
type RetrievalObserver interface {
	ObservePersonaLoad(outcome string, duration time.Duration)
	ObserveEmbed(kind string, items int, duration time.Duration, err error)
	ObserveRetrieval(facet domain.Facet, candidates, results int, duration time.Duration)
	ObserveRerankFallback(facet domain.Facet)
}

type NopObserver struct{}

func (NopObserver) ObservePersonaLoad(string, time.Duration)               {}
func (NopObserver) ObserveEmbed(string, int, time.Duration, error)         {}
func (NopObserver) ObserveRetrieval(domain.Facet, int, int, time.Duration) {}
func (NopObserver) ObserveRerankFallback(domain.Facet)                     {}
