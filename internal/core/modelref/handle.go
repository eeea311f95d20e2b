// Package modelref manages the lifetime of expensive, read-only model clients that are
// shared by many persona stores, retrieval engines and sessions.
//
// A Handle is opened once. Consumers Acquire it when they are constructed and Release it
// when they are closed. The underlying model is torn down only after the owner has called
// Close and every outstanding reference has been released.
package modelref

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

var errHandleClosed = errors.New("model handle closed")

type Handle[T any] struct {
	name     string
	model    T
	initErr  error
	teardown func(T) error

	mu      sync.Mutex
	refs    int
	closing bool
	done    bool
}

// Open runs open once and records either the model or the initialization failure.
// A failed open still yields a usable Handle whose Acquire reports ErrModelUnavailable.
func Open[T any](name string, open func() (T, error), teardown func(T) error) *Handle[T] {
	h := &Handle[T]{name: name, teardown: teardown}
	model, err := open()
	if err != nil {
		h.initErr = domain.WrapError(domain.ErrModelUnavailable, "open model "+name, err)
		return h
	}
	h.model = model
	return h
}

// Ready wraps an already constructed model.
func Ready[T any](name string, model T, teardown func(T) error) *Handle[T] {
	return &Handle[T]{name: name, model: model, teardown: teardown}
}

func (h *Handle[T]) Name() string { return h.name }

// Err returns the initialization failure, if any.
func (h *Handle[T]) Err() error { return h.initErr }

func (h *Handle[T]) Acquire() (T, error) {
	var zero T
	if h == nil {
		return zero, domain.NewError(domain.ErrModelUnavailable, "acquire model", "nil handle")
	}
	if h.initErr != nil {
		return zero, h.initErr
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return zero, domain.WrapError(domain.ErrModelUnavailable, "acquire model "+h.name, errHandleClosed)
	}
	h.refs++
	return h.model, nil
}

func (h *Handle[T]) Release() error {
	if h == nil || h.initErr != nil {
		return nil
	}

	h.mu.Lock()
	if h.refs == 0 {
		h.mu.Unlock()
		return fmt.Errorf("release model %s: no outstanding references", h.name)
	}
	h.refs--
	shouldTeardown := h.closing && h.refs == 0 && !h.done
	if shouldTeardown {
		h.done = true
	}
	h.mu.Unlock()

	if shouldTeardown {
		return h.runTeardown()
	}
	return nil
}

// Close stops new acquisitions and tears the model down once unreferenced.
func (h *Handle[T]) Close() error {
	if h == nil || h.initErr != nil {
		return nil
	}

	h.mu.Lock()
	h.closing = true
	shouldTeardown := h.refs == 0 && !h.done
	if shouldTeardown {
		h.done = true
	}
	h.mu.Unlock()

	if shouldTeardown {
		return h.runTeardown()
	}
	return nil
}

func (h *Handle[T]) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

func (h *Handle[T]) runTeardown() error {
	if h.teardown == nil {
		return nil
	}
	if err := h.teardown(h.model); err != nil {
		return fmt.Errorf("teardown model %s: %w", h.name, err)
	}
	return nil
}
