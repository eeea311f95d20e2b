package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/persona-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

// Embedder calls /api/embed with whole batches; one HTTP request per Embed call.
type Embedder struct {
	client    *Client
	dimension int
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// OpenEmbedder probes the model with a single input so that a missing or broken model is
// reported when the application starts rather than on the first persona load.
func OpenEmbedder(ctx context.Context, client *Client) (*Embedder, error) {
	if strings.TrimSpace(client.embedModel) == "" {
		return nil, fmt.Errorf("embedding model is not configured")
	}
	e := NewEmbedder(client)
	vector, err := e.EmbedQuery(ctx, "probe")
	if err != nil {
		return nil, fmt.Errorf("probe embedding model %s: %w", client.embedModel, err)
	}
	e.dimension = len(vector)
	return e, nil
}

func (e *Embedder) Model() string { return e.client.embedModel }

// Dimension is known only for embedders created with OpenEmbedder.
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.call(ctx, "ollama.embed", func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor != nil {
		call := resilience.Call{Operation: operation, Model: c.embedModel}
		err = c.executor.Execute(ctx, call, fn, resilience.ClassifyHTTPError)
	} else {
		err = fn(ctx)
	}
	return resilience.WrapTemporary(operation, err)
}
