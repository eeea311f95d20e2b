package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/modelref"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

type RetrievalOptions struct {
	Observer ports.RetrievalObserver
	Logger   *slog.Logger
}

// RetrieveRequest is one facet pass over a loaded persona.
type RetrieveRequest struct {
	Facet           domain.Facet
	Params          domain.FacetParams
	QueryText       string
	QueryEmbedding  domain.Embedding
	ChunkTexts      []string
	ChunkEmbeddings []domain.Embedding
}

// RetrievalEngine runs the two-stage retrieval: cosine similarity over all chunks, then an
// optional cross-encoder rerank of the surviving candidates.
type RetrievalEngine struct {
	handle    *modelref.Handle[ports.Reranker]
	reranker  ports.Reranker
	rerankErr error

	observer ports.RetrievalObserver
	logger   *slog.Logger

	closeOnce sync.Once
}

// NewRetrievalEngine accepts a nil handle when no reranking model is configured.
func NewRetrievalEngine(reranker *modelref.Handle[ports.Reranker], options RetrievalOptions) *RetrievalEngine {
	e := &RetrievalEngine{
		handle:   reranker,
		observer: options.Observer,
		logger:   options.Logger,
	}
	if e.observer == nil {
		e.observer = ports.NopObserver{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "retrieval_engine")

	if reranker != nil {
		e.reranker, e.rerankErr = reranker.Acquire()
		if e.rerankErr != nil {
			e.logger.Error("rerank_model_unavailable", "error", e.rerankErr)
		}
	}
	return e
}

// RerankEnabled reports whether a reranking model was configured, regardless of its health.
func (e *RetrievalEngine) RerankEnabled() bool { return e.handle != nil }

// Ready reports the reranking model initialization failure, if any.
func (e *RetrievalEngine) Ready() error { return e.rerankErr }

func (e *RetrievalEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.handle != nil && e.rerankErr == nil {
			err = e.handle.Release()
		}
	})
	return err
}

// Retrieve never fails: per-chunk problems are skipped and rerank failures degrade to the
// coarse ranking.
func (e *RetrievalEngine) Retrieve(ctx context.Context, req RetrieveRequest) []domain.RankedResult {
	start := time.Now()
	params := req.Params.Normalize(req.Facet)

	candidates := e.coarse(req, params.Threshold())
	total := len(candidates)
	candidates = trimCandidates(candidates, params.InitialRetrieval)

	var results []domain.RankedResult
	if e.handle != nil && len(candidates) > 0 {
		results = e.rerank(ctx, req, params, candidates)
	} else {
		results = toRanked(candidates)
	}
	results = trimRanked(results, params.FinalRetrieval)

	e.observer.ObserveRetrieval(req.Facet, total, len(results), time.Since(start))
	return results
}

func (e *RetrievalEngine) coarse(req RetrieveRequest, threshold float64) []domain.RetrievalCandidate {
	if len(req.QueryEmbedding) == 0 || req.QueryEmbedding.IsZero() {
		e.logger.Warn("query_embedding_unusable", "facet", req.Facet)
		return nil
	}

	n := len(req.ChunkTexts)
	if len(req.ChunkEmbeddings) != n {
		e.logger.Warn("persona_index_misaligned", "facet", req.Facet, "chunks", n, "embeddings", len(req.ChunkEmbeddings))
		n = min(n, len(req.ChunkEmbeddings))
	}

	out := make([]domain.RetrievalCandidate, 0, n)
	for i := 0; i < n; i++ {
		score, err := CosineSimilarity(req.QueryEmbedding, req.ChunkEmbeddings[i])
		if err != nil {
			e.logger.Warn("chunk_similarity_skipped", "facet", req.Facet, "chunk_index", i, "error", err)
			continue
		}
		if score < threshold {
			continue
		}
		out = append(out, domain.RetrievalCandidate{ChunkIndex: i, Text: req.ChunkTexts[i], Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out
}

func (e *RetrievalEngine) rerank(
	ctx context.Context,
	req RetrieveRequest,
	params domain.FacetParams,
	candidates []domain.RetrievalCandidate,
) []domain.RankedResult {
	if e.rerankErr != nil {
		return e.degrade(req.Facet, candidates, e.rerankErr)
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Text
	}
	scores, err := e.reranker.Rerank(ctx, RerankQuery(params, req.QueryText), passages)
	if err != nil {
		return e.degrade(req.Facet, candidates, err)
	}
	if len(scores) != len(candidates) {
		return e.degrade(req.Facet, candidates, fmt.Errorf("expected %d scores, got %d", len(candidates), len(scores)))
	}

	out := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		score := scores[i]
		out[i] = domain.RankedResult{RetrievalCandidate: c, RerankScore: &score}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := *out[i].RerankScore, *out[j].RerankScore
		if si != sj {
			return si > sj
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func (e *RetrievalEngine) degrade(facet domain.Facet, candidates []domain.RetrievalCandidate, cause error) []domain.RankedResult {
	err := domain.WrapError(domain.ErrDegradedRerank, "rerank "+string(facet), cause)
	e.logger.Warn("rerank_fallback", "facet", facet, "candidates", len(candidates), "error", err)
	e.observer.ObserveRerankFallback(facet)
	return toRanked(candidates)
}

// RetrieveAll runs every facet against the same query and collects the texts in rank order.
func (e *RetrievalEngine) RetrieveAll(
	ctx context.Context,
	queryText string,
	queryEmbedding domain.Embedding,
	index *domain.PersonaIndex,
	facets domain.FacetConfig,
) domain.ContextBundle {
	bundle := domain.NewContextBundle()
	if index == nil {
		return bundle
	}
	for _, f := range domain.AllFacets() {
		results := e.Retrieve(ctx, RetrieveRequest{
			Facet:           f,
			Params:          facets.Params(f),
			QueryText:       queryText,
			QueryEmbedding:  queryEmbedding,
			ChunkTexts:      index.Chunks,
			ChunkEmbeddings: index.Embeddings,
		})
		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Text
		}
		bundle.Facets[f] = texts
	}
	return bundle
}

// RerankQuery builds the cross-encoder query for a facet: the facet's configured query,
// followed by the user's text when present.
func RerankQuery(params domain.FacetParams, queryText string) string {
	base := strings.TrimSpace(params.RerankQuery)
	queryText = strings.TrimSpace(queryText)
	switch {
	case queryText == "":
		return base
	case base == "":
		return queryText
	default:
		return base + "\n" + queryText
	}
}

// CosineSimilarity fails on dimension mismatch, empty input, zero vectors and non-finite
// results.
func CosineSimilarity(a, b domain.Embedding) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New("empty embedding")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, errors.New("zero-norm embedding")
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, errors.New("non-finite similarity")
	}
	return score, nil
}

func trimCandidates(candidates []domain.RetrievalCandidate, limit int) []domain.RetrievalCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

func trimRanked(results []domain.RankedResult, limit int) []domain.RankedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func toRanked(candidates []domain.RetrievalCandidate) []domain.RankedResult {
	out := make([]domain.RankedResult, len(candidates))
	for i, c := range candidates {
		out[i] = domain.RankedResult{RetrievalCandidate: c}
	}
	return out
}
