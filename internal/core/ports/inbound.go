package ports

import (
	"context"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

// PersonaLoader is the inbound contract for building a persona's retrieval index.
type PersonaLoader interface {
	Load(ctx context.Context, identity string) (*domain.PersonaIndex, error)
	EmbedQuery(ctx context.Context, text string) (domain.Embedding, error)
}

// PersonaSession is one logical user's persona context.
type PersonaSession interface {
	ID() string
	LoadPersona(ctx context.Context, identity string) error
	Query(ctx context.Context, text string) (*domain.QueryResult, error)
	Identity() string
	Loaded() bool
}
