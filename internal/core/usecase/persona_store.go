package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/modelref"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

var _ ports.PersonaLoader = (*PersonaStore)(nil)

type PersonaStoreOptions struct {
	// CacheEnabled gates cache writes. Existing entries are still served when false.
	CacheEnabled bool
	Observer     ports.RetrievalObserver
	Logger       *slog.Logger
}

// PersonaStore turns a persona identity into chunks and embeddings, computing embeddings at
// most once per identity while the cache entry exists.
type PersonaStore struct {
	source  ports.PersonaSource
	cache   ports.EmbeddingCache
	chunker ports.Chunker

	handle   *modelref.Handle[ports.Embedder]
	embedder ports.Embedder
	embedErr error

	cacheEnabled bool
	observer     ports.RetrievalObserver
	logger       *slog.Logger
	now          func() time.Time

	closeOnce sync.Once
}

func NewPersonaStore(
	source ports.PersonaSource,
	cache ports.EmbeddingCache,
	chunker ports.Chunker,
	embedder *modelref.Handle[ports.Embedder],
	options PersonaStoreOptions,
) *PersonaStore {
	s := &PersonaStore{
		source:       source,
		cache:        cache,
		chunker:      chunker,
		handle:       embedder,
		cacheEnabled: options.CacheEnabled && cache != nil,
		observer:     options.Observer,
		logger:       options.Logger,
		now:          time.Now,
	}
	if s.observer == nil {
		s.observer = ports.NopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "persona_store")

	s.embedder, s.embedErr = embedder.Acquire()
	if s.embedErr != nil {
		s.logger.Error("embedding_model_unavailable", "error", s.embedErr)
	}
	return s
}

// Ready reports the embedding model initialization failure, if any.
func (s *PersonaStore) Ready() error { return s.embedErr }

func (s *PersonaStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.embedErr == nil {
			err = s.handle.Release()
		}
	})
	return err
}

func (s *PersonaStore) Load(ctx context.Context, identity string) (*domain.PersonaIndex, error) {
	start := time.Now()
	index, outcome, err := s.load(domain.WithPersona(ctx, identity), identity)
	s.observer.ObservePersonaLoad(outcome, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("load persona %q: %w", identity, err)
	}
	return index, nil
}

func (s *PersonaStore) load(ctx context.Context, identity string) (*domain.PersonaIndex, string, error) {
	if s.embedErr != nil {
		return nil, "model_unavailable", s.embedErr
	}

	path, err := s.source.Resolve(ctx, identity)
	if err != nil {
		return nil, "not_found", err
	}
	key := CacheKey(path)

	if entry := s.lookupCache(ctx, key); entry != nil {
		s.logger.Debug("persona_cache_hit", "identity", identity, "cache_key", key, "chunks", len(entry.Chunks))
		return indexFromEntry(identity, path, entry), "cache_hit", nil
	}

	doc, err := s.source.Read(ctx, path)
	if err != nil {
		return nil, "error", err
	}
	chunks, err := s.chunker.Split(doc.Text)
	if err != nil {
		return nil, "error", err
	}
	if len(chunks) == 0 {
		return nil, "empty", domain.NewError(domain.ErrEmptyDocument, "chunk persona", "%s produced no chunks", filepath.Base(path))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedBatch(ctx, texts)
	if err != nil {
		return nil, "error", err
	}

	entry := &domain.CacheEntry{
		Key:        key,
		Model:      s.embedder.Model(),
		Dimension:  len(vectors[0]),
		Chunks:     texts,
		Embeddings: vectors,
		CreatedAt:  s.now().UTC(),
	}
	if s.cacheEnabled {
		if err := s.cache.Put(ctx, entry); err != nil {
			s.logger.Warn("persona_cache_write_failed", "identity", identity, "cache_key", key, "error", err)
		}
	}

	s.logger.Info("persona_embedded", "identity", identity, "path", path, "chunks", len(texts), "dimension", entry.Dimension)
	index := indexFromEntry(identity, path, entry)
	index.FromCache = false
	return index, "built", nil
}

// lookupCache returns a usable entry or nil. Read failures and entries produced by a
// different model count as misses.
func (s *PersonaStore) lookupCache(ctx context.Context, key string) *domain.CacheEntry {
	if s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("persona_cache_read_failed", "cache_key", key, "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}
	if entry.Model != s.embedder.Model() {
		s.logger.Warn("persona_cache_model_mismatch", "cache_key", key, "cached_model", entry.Model, "model", s.embedder.Model())
		return nil
	}
	if len(entry.Chunks) == 0 || len(entry.Chunks) != len(entry.Embeddings) {
		s.logger.Warn("persona_cache_entry_invalid", "cache_key", key, "chunks", len(entry.Chunks), "embeddings", len(entry.Embeddings))
		return nil
	}
	return entry
}

func (s *PersonaStore) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := s.embedder.Embed(ctx, texts)
	s.observer.ObserveEmbed("chunks", len(texts), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embed persona chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed persona chunks: expected %d vectors, got %d", len(texts), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embed persona chunks: model %s returned empty vectors", s.embedder.Model())
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embed persona chunks: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds runtime query text. Results are never cached.
func (s *PersonaStore) EmbedQuery(ctx context.Context, text string) (domain.Embedding, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "embed query", "empty query text")
	}

	start := time.Now()
	vector, err := s.embedder.EmbedQuery(ctx, text)
	s.observer.ObserveEmbed("query", 1, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return domain.Embedding(vector), nil
}

// CacheKey derives the cache key from the resolved document path: its file name without
// extension.
func CacheKey(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func indexFromEntry(identity, path string, entry *domain.CacheEntry) *domain.PersonaIndex {
	embeddings := make([]domain.Embedding, len(entry.Embeddings))
	for i, v := range entry.Embeddings {
		embeddings[i] = domain.Embedding(v)
	}
	return &domain.PersonaIndex{
		Identity:   identity,
		Path:       path,
		Model:      entry.Model,
		Chunks:     entry.Chunks,
		Embeddings: embeddings,
		FromCache:  true,
	}
}
