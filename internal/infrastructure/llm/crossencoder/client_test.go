package crossencoder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRerankAlignsScoresByIndex(t *testing.T) {
	var captured rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// TEI returns hits sorted by score, not by input order.
		_, _ = w.Write([]byte(`[{"index":2,"score":4.5},{"index":0,"score":1.25},{"index":1,"score":-3}]`))
	}))
	defer server.Close()

	client := New(server.URL, "bge-reranker", Options{})
	scores, err := client.Rerank(context.Background(), "style\nwrite a ghost story", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if scores[0] != 1.25 || scores[1] != -3 || scores[2] != 4.5 {
		t.Fatalf("unexpected aligned scores: %v", scores)
	}
	if captured.Query != "style\nwrite a ghost story" || len(captured.Texts) != 3 || captured.Model != "bge-reranker" {
		t.Fatalf("unexpected request: %+v", captured)
	}
}

func TestRerankRejectsMalformedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":0,"score":1},{"index":0,"score":2}]`))
	}))
	defer server.Close()

	client := New(server.URL, "m", Options{})
	if _, err := client.Rerank(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Fatalf("expected error for duplicate index")
	}
}

func TestRerankSurfacesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := New(server.URL, "m", Options{})
	_, err := client.Rerank(context.Background(), "q", []string{"a"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status error 422, got %v", err)
	}
}

func TestOpenRequiresModel(t *testing.T) {
	if _, err := Open(context.Background(), New("http://127.0.0.1:0", " ", Options{})); err == nil {
		t.Fatalf("expected error for empty model")
	}
}
