package domain

import "strings"

type Facet string

const (
	FacetTopic    Facet = "topic"
	FacetStyle    Facet = "style"
	FacetTimeline Facet = "timeline"
)

const (
	DefaultInitialRetrieval    = 7
	DefaultFinalRetrieval      = 3
	DefaultSimilarityThreshold = 0.20
)

// AllFacets returns every facet in context formatting order.
func AllFacets() []Facet {
	return []Facet{FacetTopic, FacetStyle, FacetTimeline}
}

func ParseFacet(raw string) (Facet, error) {
	f := Facet(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FacetTopic, FacetStyle, FacetTimeline:
		return f, nil
	default:
		return "", NewError(ErrConfiguration, "parse facet", "unknown facet %q", raw)
	}
}

func (f Facet) String() string { return string(f) }

// Label is the section heading used when the facet is rendered into a context block.
func (f Facet) Label() string {
	switch f {
	case FacetTopic:
		return "Topic-Relevant Information:"
	case FacetStyle:
		return "Style Guidelines:"
	case FacetTimeline:
		return "Timeline Information:"
	default:
		return string(f) + ":"
	}
}

// FacetParams tune a single retrieval pass. Zero values fall back to defaults on Normalize.
type FacetParams struct {
	InitialRetrieval    int      `yaml:"initial_retrieval"`
	FinalRetrieval      int      `yaml:"final_retrieval"`
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`
	RerankQuery         string   `yaml:"rerank_query"`
}

func DefaultFacetParams(f Facet) FacetParams {
	threshold := DefaultSimilarityThreshold
	return FacetParams{
		InitialRetrieval:    DefaultInitialRetrieval,
		FinalRetrieval:      DefaultFinalRetrieval,
		SimilarityThreshold: &threshold,
		RerankQuery:         string(f),
	}
}

// Threshold returns the similarity threshold, defaulting when unset.
func (p FacetParams) Threshold() float64 {
	if p.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *p.SimilarityThreshold
}

// Normalize fills unset fields from defaults and clamps FinalRetrieval to InitialRetrieval.
func (p FacetParams) Normalize(f Facet) FacetParams {
	def := DefaultFacetParams(f)
	out := p
	if out.InitialRetrieval <= 0 {
		out.InitialRetrieval = def.InitialRetrieval
	}
	if out.FinalRetrieval <= 0 {
		out.FinalRetrieval = def.FinalRetrieval
	}
	if out.FinalRetrieval > out.InitialRetrieval {
		out.FinalRetrieval = out.InitialRetrieval
	}
	if out.SimilarityThreshold == nil {
		out.SimilarityThreshold = def.SimilarityThreshold
	}
	if strings.TrimSpace(out.RerankQuery) == "" {
		out.RerankQuery = def.RerankQuery
	}
	return out
}

// UnmarshalYAML rejects counts written as zero or below. In Go code a zero count means
// "use the default"; a config file has no way to say that other than omitting the key.
func (p *FacetParams) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		InitialRetrieval    *int     `yaml:"initial_retrieval"`
		FinalRetrieval      *int     `yaml:"final_retrieval"`
		SimilarityThreshold *float64 `yaml:"similarity_threshold"`
		RerankQuery         string   `yaml:"rerank_query"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw.InitialRetrieval != nil && *raw.InitialRetrieval <= 0 {
		return NewError(ErrConfiguration, "decode facet params", "initial_retrieval must be positive, got %d", *raw.InitialRetrieval)
	}
	if raw.FinalRetrieval != nil && *raw.FinalRetrieval <= 0 {
		return NewError(ErrConfiguration, "decode facet params", "final_retrieval must be positive, got %d", *raw.FinalRetrieval)
	}

	*p = FacetParams{
		SimilarityThreshold: raw.SimilarityThreshold,
		RerankQuery:         raw.RerankQuery,
	}
	if raw.InitialRetrieval != nil {
		p.InitialRetrieval = *raw.InitialRetrieval
	}
	if raw.FinalRetrieval != nil {
		p.FinalRetrieval = *raw.FinalRetrieval
	}
	return nil
}

// Validate rejects explicit values that cannot be normalized into something sensible.
func (p FacetParams) Validate(f Facet) error {
	if p.InitialRetrieval < 0 || p.FinalRetrieval < 0 {
		return NewError(ErrConfiguration, "validate facet params", "%s: retrieval counts must not be negative", f)
	}
	if p.InitialRetrieval > 0 && p.FinalRetrieval > p.InitialRetrieval {
		return NewError(ErrConfiguration, "validate facet params",
			"%s: final_retrieval %d exceeds initial_retrieval %d", f, p.FinalRetrieval, p.InitialRetrieval)
	}
	if p.SimilarityThreshold != nil && (*p.SimilarityThreshold < -1 || *p.SimilarityThreshold > 1) {
		return NewError(ErrConfiguration, "validate facet params",
			"%s: similarity_threshold %.3f outside [-1, 1]", f, *p.SimilarityThreshold)
	}
	return nil
}

type FacetConfig map[Facet]FacetParams

func DefaultFacetConfig() FacetConfig {
	out := make(FacetConfig, len(AllFacets()))
	for _, f := range AllFacets() {
		out[f] = DefaultFacetParams(f)
	}
	return out
}

// Params returns normalized params for the facet.
func (c FacetConfig) Params(f Facet) FacetParams {
	return c[f].Normalize(f)
}

// Merge overlays non-zero fields of override on top of c and returns a new config.
func (c FacetConfig) Merge(override FacetConfig) FacetConfig {
	out := make(FacetConfig, len(c))
	for f, p := range c {
		out[f] = p
	}
	for f, o := range override {
		base := out[f]
		if o.InitialRetrieval > 0 {
			base.InitialRetrieval = o.InitialRetrieval
		}
		if o.FinalRetrieval > 0 {
			base.FinalRetrieval = o.FinalRetrieval
		}
		if o.SimilarityThreshold != nil {
			v := *o.SimilarityThreshold
			base.SimilarityThreshold = &v
		}
		if strings.TrimSpace(o.RerankQuery) != "" {
			base.RerankQuery = o.RerankQuery
		}
		out[f] = base
	}
	return out
}

// Validate requires canonical facet keys; Merge and Params look keys up verbatim.
func (c FacetConfig) Validate() error {
	for f, p := range c {
		parsed, err := ParseFacet(string(f))
		if err != nil {
			return err
		}
		if parsed != f {
			return NewError(ErrConfiguration, "validate facet config", "facet key %q must be written as %q", string(f), string(parsed))
		}
		if err := p.Validate(f); err != nil {
			return err
		}
	}
	return nil
}
