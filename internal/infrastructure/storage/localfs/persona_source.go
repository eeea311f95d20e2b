package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

var _ ports.PersonaSource = (*PersonaSource)(nil)

// PersonaSuffixes are tried, in order, after the identity as given.
var PersonaSuffixes = []string{".txt", ".md", "_persona.txt"}

type PersonaSource struct {
	storage *Storage
}

func NewPersonaSource(storage *Storage) *PersonaSource {
	return &PersonaSource{storage: storage}
}

// Resolve maps a persona identity to an existing file. Relative identities are looked up
// inside the personas directory and may not escape it.
func (p *PersonaSource) Resolve(_ context.Context, identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", domain.NewError(domain.ErrInvalidInput, "resolve persona", "empty identity")
	}

	base := identity
	if !filepath.IsAbs(identity) {
		cleaned := filepath.Clean(identity)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return "", domain.NewError(domain.ErrInvalidInput, "resolve persona", "identity %q escapes personas directory", identity)
		}
		if rel, err := filepath.Rel(p.storage.BasePath(), cleaned); err == nil && !strings.HasPrefix(rel, "..") {
			cleaned = rel
		}
		base = p.storage.Path(cleaned)
	}

	candidates := make([]string, 0, len(PersonaSuffixes)+1)
	candidates = append(candidates, base)
	for _, suffix := range PersonaSuffixes {
		candidates = append(candidates, base+suffix)
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", domain.NewError(domain.ErrNotFound, "resolve persona", "no persona document for %q", identity)
}

func (p *PersonaSource) Read(_ context.Context, path string) (*domain.PersonaDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrNotFound, "open persona document", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read persona document: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, domain.NewError(domain.ErrInvalidInput, "read persona document", "%s is not valid UTF-8 text", filepath.Base(path))
	}

	return &domain.PersonaDocument{
		Identity: Stem(path),
		Path:     path,
		Text:     string(raw),
	}, nil
}

// List returns persona identities available in the personas directory.
func (p *PersonaSource) List(_ context.Context) ([]string, error) {
	names, err := p.storage.List(PersonaSuffixes...)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		id := Stem(name)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// Stem strips the directory, a recognised persona suffix, and any remaining extension.
func Stem(path string) string {
	name := filepath.Base(path)
	for i := len(PersonaSuffixes) - 1; i >= 0; i-- {
		if strings.HasSuffix(name, PersonaSuffixes[i]) {
			return strings.TrimSuffix(name, PersonaSuffixes[i])
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
