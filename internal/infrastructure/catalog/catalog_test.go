package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

func writeConfigs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLookupParsesRetrievalOverrides(t *testing.T) {
	dir := writeConfigs(t, map[string]string{
		"himu_config.yaml": `
name: Himu
persona_file: himu_persona.txt
retrieval_params:
  style:
    initial_retrieval: 10
    final_retrieval: 5
    similarity_threshold: 0.35
`,
	})

	character, err := New(dir).Lookup(context.Background(), "himu")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if character == nil || character.Name != "Himu" || character.PersonaFile != "himu_persona.txt" || character.ID != "himu" {
		t.Fatalf("unexpected character: %+v", character)
	}
	style := character.Retrieval[domain.FacetStyle]
	if style.InitialRetrieval != 10 || style.FinalRetrieval != 5 || style.Threshold() != 0.35 {
		t.Fatalf("unexpected style params: %+v", style)
	}
	if _, ok := character.Retrieval[domain.FacetTopic]; ok {
		t.Fatalf("expected topic to stay unset")
	}
}

func TestLookupMissingCharacter(t *testing.T) {
	character, err := New(t.TempDir()).Lookup(context.Background(), "ghost_writer")
	if err != nil || character != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", character, err)
	}
}

func TestLookupRejectsOverridesThatWouldBeIgnored(t *testing.T) {
	dir := writeConfigs(t, map[string]string{
		"shouting.yaml": "persona_file: s.txt\nretrieval_params:\n  Style:\n    final_retrieval: 5\n",
		"silent.yaml":   "persona_file: q.txt\nretrieval_params:\n  timeline:\n    final_retrieval: 0\n",
	})
	for _, name := range []string{"shouting", "silent"} {
		if _, err := New(dir).Lookup(context.Background(), name); !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestLookupRejectsInvalidParams(t *testing.T) {
	dir := writeConfigs(t, map[string]string{
		"bad.yaml": `
persona_file: bad.txt
retrieval_params:
  topic:
    initial_retrieval: 2
    final_retrieval: 4
`,
	})
	_, err := New(dir).Lookup(context.Background(), "bad")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLookupRequiresPersonaFile(t *testing.T) {
	dir := writeConfigs(t, map[string]string{"empty.yaml": "name: Empty\n"})
	_, err := New(dir).Lookup(context.Background(), "empty")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestListStripsSuffixes(t *testing.T) {
	dir := writeConfigs(t, map[string]string{
		"himu.yaml":         "persona_file: a",
		"misir_config.yaml": "persona_file: b",
		"rupa__config.yaml": "persona_file: c",
		"himu__config.yaml": "persona_file: d",
		"himu.meta.json":    "{}",
	})
	names, err := New(dir).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if strings.Join(names, ",") != "himu,misir,rupa" {
		t.Fatalf("unexpected names: %v", names)
	}
}
