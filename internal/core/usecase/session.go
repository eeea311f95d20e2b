package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

var _ ports.PersonaSession = (*Session)(nil)

type SessionOptions struct {
	// Catalog is optional. Without it identities go straight to the persona source.
	Catalog ports.CharacterCatalog

	// Facets are the process-wide retrieval params. Character overrides merge on top.
	Facets domain.FacetConfig

	Logger *slog.Logger
}

type sessionState struct {
	identity string
	index    *domain.PersonaIndex
	facets   domain.FacetConfig
}

// Session holds at most one loaded persona. Loads replace the state atomically and queries
// run against a snapshot, so a failed load leaves the previous persona in place.
type Session struct {
	id      string
	loader  ports.PersonaLoader
	engine  *RetrievalEngine
	catalog ports.CharacterCatalog
	facets  domain.FacetConfig
	logger  *slog.Logger

	mu    sync.RWMutex
	state *sessionState
}

func NewSession(loader ports.PersonaLoader, engine *RetrievalEngine, options SessionOptions) *Session {
	id := uuid.NewString()
	facets := options.Facets
	if facets == nil {
		facets = domain.DefaultFacetConfig()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:      id,
		loader:  loader,
		engine:  engine,
		catalog: options.Catalog,
		facets:  facets,
		logger:  logger.With("component", "session", "session_id", id),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return ""
	}
	return s.state.identity
}

func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != nil
}

func (s *Session) LoadPersona(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.NewError(domain.ErrInvalidInput, "load persona", "empty persona identity")
	}

	target := identity
	facets := s.facets
	if s.catalog != nil {
		character, err := s.catalog.Lookup(ctx, identity)
		if err != nil {
			return fmt.Errorf("lookup character %q: %w", identity, err)
		}
		if character != nil {
			target = character.PersonaFile
			facets = facets.Merge(character.Retrieval)
		}
	}

	index, err := s.loader.Load(ctx, target)
	if err != nil {
		s.logger.Warn("persona_load_failed", "identity", identity, "error", err)
		return err
	}

	s.mu.Lock()
	s.state = &sessionState{identity: identity, index: index, facets: facets}
	s.mu.Unlock()

	s.logger.Info("persona_loaded",
		"identity", identity,
		"persona_file", target,
		"chunks", index.Len(),
		"from_cache", index.FromCache,
	)
	return nil
}

func (s *Session) Query(ctx context.Context, text string) (*domain.QueryResult, error) {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state == nil {
		return nil, domain.NewError(domain.ErrNoPersonaLoaded, "query", "session %s has no persona", s.id)
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "query", "empty query text")
	}

	ctx = domain.WithPersona(ctx, state.identity)
	queryEmbedding, err := s.loader.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query persona %q: %w", state.identity, err)
	}

	bundle := s.engine.RetrieveAll(ctx, text, queryEmbedding, state.index, state.facets)
	return &domain.QueryResult{
		SessionID:       s.id,
		Persona:         state.identity,
		Bundle:          bundle,
		Context:         Format(bundle),
		StyleGuidelines: StyleGuidelines(bundle),
	}, nil
}

// Facets returns the effective retrieval params of the loaded persona.
func (s *Session) Facets() domain.FacetConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return s.facets
	}
	return s.state.facets
}
