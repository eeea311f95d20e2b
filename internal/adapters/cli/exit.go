package cli

import "github.com/kirillkom/persona-rag/internal/core/domain"

const (
	ExitOK = iota
	ExitFailure
	ExitConfiguration
	ExitNotFound
	ExitModelUnavailable
	ExitNoPersona
	ExitInvalidInput
)

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case domain.IsKind(err, domain.ErrConfiguration):
		return ExitConfiguration
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrEmptyDocument):
		return ExitNotFound
	case domain.IsKind(err, domain.ErrModelUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return ExitModelUnavailable
	case domain.IsKind(err, domain.ErrNoPersonaLoaded):
		return ExitNoPersona
	case domain.IsKind(err, domain.ErrInvalidInput):
		return ExitInvalidInput
	default:
		return ExitFailure
	}
}
