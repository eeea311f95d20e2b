package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*EmbeddingCacheRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &EmbeddingCacheRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetReturnsNilOnMiss(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT cache_key, model, dimension").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	entry, err := repo.Get(context.Background(), "ghost")
	if err != nil || entry != nil {
		t.Fatalf("expected clean miss, got %+v, %v", entry, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDecodesEntry(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"cache_key", "model", "dimension", "chunks", "embeddings", "created_at"}).
		AddRow("himu", "nomic-embed-text", 2, []byte(`["a","b"]`), []byte(`[[1,0],[0,1]]`), created)
	mock.ExpectQuery("SELECT cache_key, model, dimension").
		WithArgs("himu").
		WillReturnRows(rows)

	entry, err := repo.Get(context.Background(), "himu")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Model != "nomic-embed-text" || len(entry.Chunks) != 2 || entry.Embeddings[1][1] != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRejectsMisalignedEntry(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"cache_key", "model", "dimension", "chunks", "embeddings", "created_at"}).
		AddRow("himu", "m", 2, []byte(`["a","b"]`), []byte(`[[1,0]]`), time.Now())
	mock.ExpectQuery("SELECT cache_key").WithArgs("himu").WillReturnRows(rows)

	if _, err := repo.Get(context.Background(), "himu"); err == nil {
		t.Fatalf("expected error for misaligned entry")
	}
}

func TestPutUpserts(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO persona_embedding_cache").
		WithArgs("himu", "m", 2, []byte(`["a"]`), []byte(`[[0.5,0.25]]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), &domain.CacheEntry{
		Key:        "himu",
		Model:      "m",
		Dimension:  2,
		Chunks:     []string{"a"},
		Embeddings: [][]float32{{0.5, 0.25}},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPutWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO persona_embedding_cache").WillReturnError(errors.New("disk full"))

	err := repo.Put(context.Background(), &domain.CacheEntry{Key: "himu"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS persona_embedding_cache").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
