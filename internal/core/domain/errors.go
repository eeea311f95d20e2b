package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("persona not found")
	ErrEmptyDocument    = errors.New("empty persona document")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrDegradedRerank   = errors.New("rerank degraded")
	ErrNoPersonaLoaded  = errors.New("no persona loaded")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// NewError builds a typed error without an underlying cause.
func NewError(kind error, operation, format string, args ...any) error {
	return WrapError(kind, operation, fmt.Errorf(format, args...))
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
