package usecase

import (
	"strings"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

// Format renders the bundle as labelled sections in facet order. Facets with no
// results are omitted and an empty bundle renders as "".
func Format(bundle domain.ContextBundle) string {
	parts := make([]string, 0, 8)
	for _, f := range domain.AllFacets() {
		texts := bundle.Texts(f)
		if len(texts) == 0 {
			continue
		}
		label := f.Label()
		if len(parts) > 0 {
			label = "\n" + label
		}
		parts = append(parts, label)
		parts = append(parts, texts...)
	}
	return strings.Join(parts, "\n\n")
}

// StyleGuidelines joins the style facet texts for use as generator instructions.
func StyleGuidelines(bundle domain.ContextBundle) string {
	return strings.Join(bundle.Texts(domain.FacetStyle), "\n")
}
