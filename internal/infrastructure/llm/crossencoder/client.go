// Package crossencoder talks to a text-embeddings-inference compatible /rerank endpoint
// that scores (query, passage) pairs with a cross-encoder model.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/persona-rag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

// Open verifies the reranker answers a one-pair request.
func Open(ctx context.Context, client *Client) (*Client, error) {
	if strings.TrimSpace(client.model) == "" {
		return nil, fmt.Errorf("reranker model is not configured")
	}
	if _, err := client.Rerank(ctx, "probe", []string{"probe"}); err != nil {
		return nil, fmt.Errorf("probe reranker %s: %w", client.model, err)
	}
	return client, nil
}

func (c *Client) Model() string { return c.model }

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankHit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank returns one score per passage, index-aligned with passages.
func (c *Client) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	request := rerankRequest{
		Model:     c.model,
		Query:     query,
		Texts:     passages,
		RawScores: true,
	}

	var hits []rerankHit
	send := func(callCtx context.Context) error {
		hits = nil
		return c.postJSON(callCtx, "/rerank", request, &hits)
	}

	var err error
	if c.executor != nil {
		call := resilience.Call{Operation: "crossencoder.rerank", Model: c.model}
		err = c.executor.Execute(ctx, call, send, resilience.ClassifyHTTPError)
	} else {
		err = send(ctx)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("crossencoder.rerank", err)
	}

	return alignScores(hits, len(passages))
}

func alignScores(hits []rerankHit, n int) ([]float64, error) {
	if len(hits) != n {
		return nil, fmt.Errorf("rerank: expected %d scores, got %d", n, len(hits))
	}
	scores := make([]float64, n)
	seen := make([]bool, n)
	for _, hit := range hits {
		if hit.Index < 0 || hit.Index >= n || seen[hit.Index] {
			return nil, fmt.Errorf("rerank: invalid or duplicate index %d", hit.Index)
		}
		seen[hit.Index] = true
		scores[hit.Index] = hit.Score
	}
	return scores, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(respBody))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rerank status: %s", e.Status)
	}
	return fmt.Sprintf("rerank status: %s: %s", e.Status, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }
