// Package filecache stores one JSON file per persona holding its chunks and embeddings.
// Files are never checked against the persona document they were built from; delete a
// file to force recomputation.
package filecache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
	"github.com/kirillkom/persona-rag/internal/infrastructure/storage/localfs"
)

var _ ports.EmbeddingCache = (*Cache)(nil)

const fileSuffix = "_embeddings.json"

type Cache struct {
	storage *localfs.Storage
}

func New(storage *localfs.Storage) *Cache {
	return &Cache{storage: storage}
}

func FileName(key string) string {
	return key + fileSuffix
}

func (c *Cache) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	name := FileName(key)
	exists, err := c.storage.Exists(name)
	if err != nil {
		return nil, fmt.Errorf("check cache file: %w", err)
	}
	if !exists {
		return nil, nil
	}

	reader, err := c.storage.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}
	defer reader.Close()

	var entry domain.CacheEntry
	if err := json.NewDecoder(reader).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", name, err)
	}
	if len(entry.Chunks) != len(entry.Embeddings) {
		return nil, fmt.Errorf("cache file %s: %d chunks but %d embeddings", name, len(entry.Chunks), len(entry.Embeddings))
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return &entry, nil
}

func (c *Cache) Put(ctx context.Context, entry *domain.CacheEntry) error {
	if entry == nil || strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("cache entry without key")
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.storage.Save(ctx, FileName(entry.Key), bytes.NewReader(body)); err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}
