// Package catalog reads per-character YAML files that bind a character name to its persona
// document and optional retrieval overrides.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

var _ ports.CharacterCatalog = (*Catalog)(nil)

// fileSuffixes are tried in order for a character name. Longer suffixes come first in
// nameFromFile so that "x__config.yaml" does not become "x_".
var fileSuffixes = []string{".yaml", "_config.yaml", "__config.yaml"}

type Catalog struct {
	dir string
}

func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

func (c *Catalog) Lookup(_ context.Context, name string) (*domain.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" || c.dir == "" || strings.ContainsAny(name, `/\`) {
		return nil, nil
	}

	for _, suffix := range fileSuffixes {
		path := filepath.Join(c.dir, name+suffix)
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read character config %s: %w", path, err)
		}
		return decode(name, path, raw)
	}
	return nil, nil
}

func (c *Catalog) List(_ context.Context) ([]string, error) {
	if c.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read character config dir: %w", err)
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := nameFromFile(entry.Name())
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func decode(name, path string, raw []byte) (*domain.Character, error) {
	var character domain.Character
	if err := yaml.Unmarshal(raw, &character); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "parse character config "+path, err)
	}
	character.ID = name
	if character.Name == "" {
		character.Name = name
	}
	if err := character.Retrieval.Validate(); err != nil {
		return nil, fmt.Errorf("character %s: %w", name, err)
	}
	if strings.TrimSpace(character.PersonaFile) == "" {
		return nil, domain.NewError(domain.ErrConfiguration, "parse character config "+path, "persona_file is required")
	}
	return &character, nil
}

func nameFromFile(file string) string {
	for _, suffix := range []string{"__config.yaml", "_config.yaml", ".yaml"} {
		if strings.HasSuffix(file, suffix) {
			return strings.TrimSuffix(file, suffix)
		}
	}
	return file
}
