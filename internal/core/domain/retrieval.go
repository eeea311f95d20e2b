package domain

import "strings"

type RetrievalCandidate struct {
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type RankedResult struct {
	RetrievalCandidate
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// ContextBundle maps each facet to its selected chunk texts in rank order.
type ContextBundle struct {
	Facets map[Facet][]string `json:"facets"`
}

func NewContextBundle() ContextBundle {
	return ContextBundle{Facets: make(map[Facet][]string, len(AllFacets()))}
}

func (b ContextBundle) Texts(f Facet) []string {
	return b.Facets[f]
}

func (b ContextBundle) IsEmpty() bool {
	for _, texts := range b.Facets {
		if len(texts) > 0 {
			return false
		}
	}
	return true
}

// QueryResult is everything handed to the downstream generator for one query.
type QueryResult struct {
	SessionID       string        `json:"session_id"`
	Persona         string        `json:"persona"`
	Bundle          ContextBundle `json:"bundle"`
	Context         string        `json:"context"`
	StyleGuidelines string        `json:"style_guidelines"`
}

func (r *QueryResult) HasContext() bool {
	return r != nil && strings.TrimSpace(r.Context) != ""
}
