package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

type sessionFake struct {
	identity string
	queries  []string
}

func (s *sessionFake) ID() string { return "session-1" }

func (s *sessionFake) LoadPersona(_ context.Context, identity string) error {
	if identity == "ghost_writer" {
		return domain.NewError(domain.ErrNotFound, "resolve persona", "%s", identity)
	}
	s.identity = identity
	return nil
}

func (s *sessionFake) Query(_ context.Context, text string) (*domain.QueryResult, error) {
	if s.identity == "" {
		return nil, domain.NewError(domain.ErrNoPersonaLoaded, "query", "empty session")
	}
	s.queries = append(s.queries, text)
	bundle := domain.NewContextBundle()
	bundle.Facets[domain.FacetTopic] = []string{s.identity + " likes rain"}
	bundle.Facets[domain.FacetStyle] = []string{"speaks softly"}
	return &domain.QueryResult{
		SessionID:       "session-1",
		Persona:         s.identity,
		Bundle:          bundle,
		Context:         "Topic-Relevant Information:\n\n" + s.identity + " likes rain\n\n\nStyle Guidelines:\n\nspeaks softly",
		StyleGuidelines: "speaks softly",
	}, nil
}

func (s *sessionFake) Identity() string { return s.identity }
func (s *sessionFake) Loaded() bool     { return s.identity != "" }

type backendFake struct {
	session   *sessionFake
	rerankErr error
	closed    int
	users     []string
}

func (b *backendFake) ListPersonas(context.Context) ([]string, error) {
	return []string{"himu", "misir"}, nil
}

func (b *backendFake) ListCharacters(context.Context) ([]string, error) { return nil, nil }

func (b *backendFake) Warm(_ context.Context, identity string) (*domain.PersonaIndex, error) {
	if identity == "ghost_writer" {
		return nil, domain.NewError(domain.ErrNotFound, "resolve persona", "%s", identity)
	}
	return &domain.PersonaIndex{Identity: identity, Chunks: []string{"a", "b"}, FromCache: identity == "himu"}, nil
}

func (b *backendFake) Session(user string) ports.PersonaSession {
	b.users = append(b.users, user)
	return b.session
}

func (b *backendFake) EmbedderErr() error { return nil }
func (b *backendFake) RerankerErr() error { return b.rerankErr }

func (b *backendFake) Close() error {
	b.closed++
	return nil
}

func run(t *testing.T, backend *backendFake, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd(func(context.Context, Options) (Backend, error) { return backend, nil })
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestListPrintsPersonas(t *testing.T) {
	backend := &backendFake{session: &sessionFake{}}
	out, _, err := run(t, backend, "", "list")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if out != "Personas:\n  himu\n  misir\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if backend.closed != 1 {
		t.Fatalf("expected backend to be closed once, got %d", backend.closed)
	}
}

func TestWarmReportsEachPersona(t *testing.T) {
	backend := &backendFake{session: &sessionFake{}}
	out, errOut, err := run(t, backend, "", "warm", "himu", "ghost_writer", "misir")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if out != "himu: 2 chunks (cached)\nmisir: 2 chunks (embedded)\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.HasPrefix(errOut, "ghost_writer: ") {
		t.Fatalf("expected failure on stderr, got %q", errOut)
	}
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not-found exit code, got %d", ExitCode(err))
	}
}

func TestQueryPrintsContext(t *testing.T) {
	backend := &backendFake{session: &sessionFake{}, rerankErr: errors.New("reranker down")}
	out, errOut, err := run(t, backend, "", "--user", "alice", "query", "himu", "do", "you", "like", "rain?")
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	want := "Topic-Relevant Information:\n\nhimu likes rain\n\n\nStyle Guidelines:\n\nspeaks softly\n" +
		"\nGeneration style guidelines:\nspeaks softly\n"
	if out != want {
		t.Fatalf("unexpected output %q", out)
	}
	if backend.session.queries[0] != "do you like rain?" {
		t.Fatalf("expected joined query text, got %q", backend.session.queries[0])
	}
	if len(backend.users) != 1 || backend.users[0] != "alice" {
		t.Fatalf("expected session for alice, got %v", backend.users)
	}
	if !strings.Contains(errOut, "reranking disabled") {
		t.Fatalf("expected degraded warning, got %q", errOut)
	}
}

func TestQueryJSON(t *testing.T) {
	backend := &backendFake{session: &sessionFake{}}
	out, _, err := run(t, backend, "", "query", "--json", "himu", "rain")
	if err != nil {
		t.Fatalf("query error = %v", err)
	}
	var result domain.QueryResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if result.Persona != "himu" || result.Bundle.Texts(domain.FacetTopic)[0] != "himu likes rain" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestQueryUnknownPersona(t *testing.T) {
	backend := &backendFake{session: &sessionFake{}}
	_, _, err := run(t, backend, "", "query", "ghost_writer", "hello")
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not-found exit code, got %d (%v)", ExitCode(err), err)
	}
	if backend.closed != 1 {
		t.Fatalf("backend must be closed on failure")
	}
}

func TestChatLoop(t *testing.T) {
	backend := &backendFake{session: &sessionFake{}}
	stdin := "hello\n/load ghost_writer\n/loadmisir\n/load\n/who\n/load misir\n/who\nrain\n/quit\nignored\n"
	out, _, err := run(t, backend, stdin, "chat")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}

	for _, want := range []string{
		"error: query: no persona loaded",
		"error: resolve persona: persona not found",
		"unknown command /loadmisir",
		"usage: /load <persona>",
		"> (no persona loaded)\n",
		"loaded misir",
		"> misir\n",
		"misir likes rain",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("chat output missing %q:\n%s", want, out)
		}
	}
	if len(backend.session.queries) != 1 {
		t.Fatalf("expected exactly one successful query, got %v", backend.session.queries)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFailure},
		{domain.NewError(domain.ErrConfiguration, "op", "x"), ExitConfiguration},
		{domain.NewError(domain.ErrEmptyDocument, "op", "x"), ExitNotFound},
		{domain.NewError(domain.ErrModelUnavailable, "op", "x"), ExitModelUnavailable},
		{domain.NewError(domain.ErrNoPersonaLoaded, "op", "x"), ExitNoPersona},
		{domain.NewError(domain.ErrInvalidInput, "op", "x"), ExitInvalidInput},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
