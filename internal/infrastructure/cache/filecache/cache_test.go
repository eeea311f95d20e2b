package filecache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/infrastructure/storage/localfs"
)

func newCache(t *testing.T) (*Cache, *localfs.Storage) {
	t.Helper()
	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	return New(storage), storage
}

func TestCacheRoundTripPreservesOrder(t *testing.T) {
	cache, storage := newCache(t)
	ctx := context.Background()

	entry := &domain.CacheEntry{
		Key:        "himu",
		Model:      "nomic-embed-text",
		Dimension:  2,
		Chunks:     []string{"first", "second", "third"},
		Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}},
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := cache.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(storage.Path("himu_embeddings.json")); err != nil {
		t.Fatalf("expected cache file on disk: %v", err)
	}

	got, err := cache.Get(ctx, "himu")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Model != entry.Model || got.Dimension != 2 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	for i := range entry.Chunks {
		if got.Chunks[i] != entry.Chunks[i] || got.Embeddings[i][1] != entry.Embeddings[i][1] {
			t.Fatalf("entry %d differs after round trip", i)
		}
	}
}

func TestCacheMissReturnsNil(t *testing.T) {
	cache, _ := newCache(t)
	got, err := cache.Get(context.Background(), "ghost")
	if err != nil || got != nil {
		t.Fatalf("expected clean miss, got %+v, %v", got, err)
	}
}

func TestCacheCorruptFileIsAnError(t *testing.T) {
	cache, storage := newCache(t)
	if err := os.WriteFile(storage.Path("broken_embeddings.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := cache.Get(context.Background(), "broken"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCacheReadsLegacyLayout(t *testing.T) {
	cache, storage := newCache(t)
	legacy := `{"chunks":["a","b"],"embeddings":[[1,0],[0,1]]}`
	if err := os.WriteFile(storage.Path("old_embeddings.json"), []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := cache.Get(context.Background(), "old")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Key != "old" || got.Model != "" || len(got.Chunks) != 2 {
		t.Fatalf("unexpected legacy entry: %+v", got)
	}
}
