package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

var _ ports.EmbeddingCache = (*EmbeddingCacheRepository)(nil)

// EmbeddingCacheRepository keeps one row per persona cache key. Like the file cache it
// never compares rows with the source document.
type EmbeddingCacheRepository struct {
	db *sql.DB
}

func NewEmbeddingCacheRepository(db *sql.DB) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *EmbeddingCacheRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent CLI starts.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS persona_embedding_cache (
	cache_key TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	dimension INTEGER NOT NULL,
	chunks JSONB NOT NULL,
	embeddings JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *EmbeddingCacheRepository) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT cache_key, model, dimension, chunks, embeddings, created_at
FROM persona_embedding_cache
WHERE cache_key = $1
`, key)

	var entry domain.CacheEntry
	var chunksRaw, embeddingsRaw []byte
	err := row.Scan(&entry.Key, &entry.Model, &entry.Dimension, &chunksRaw, &embeddingsRaw, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	if err := json.Unmarshal(chunksRaw, &entry.Chunks); err != nil {
		return nil, fmt.Errorf("unmarshal cached chunks: %w", err)
	}
	if err := json.Unmarshal(embeddingsRaw, &entry.Embeddings); err != nil {
		return nil, fmt.Errorf("unmarshal cached embeddings: %w", err)
	}
	if len(entry.Chunks) != len(entry.Embeddings) {
		return nil, fmt.Errorf("cache entry %s: %d chunks but %d embeddings", key, len(entry.Chunks), len(entry.Embeddings))
	}
	return &entry, nil
}

func (r *EmbeddingCacheRepository) Put(ctx context.Context, entry *domain.CacheEntry) error {
	if entry == nil || strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("cache entry without key")
	}
	chunksJSON, err := json.Marshal(entry.Chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	embeddingsJSON, err := json.Marshal(entry.Embeddings)
	if err != nil {
		return fmt.Errorf("marshal embeddings: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO persona_embedding_cache (cache_key, model, dimension, chunks, embeddings, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (cache_key) DO UPDATE
SET model = EXCLUDED.model, dimension = EXCLUDED.dimension, chunks = EXCLUDED.chunks,
	embeddings = EXCLUDED.embeddings, created_at = EXCLUDED.created_at
`, entry.Key, entry.Model, entry.Dimension, chunksJSON, embeddingsJSON, createdAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}
