package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kirillkom/persona-rag/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Call names one kind of model request. Breakers are kept per Call, so an outage of the
// reranker never trips the embedder.
type Call struct {
	Operation string
	Model     string
}

func (c Call) key() string {
	op := strings.TrimSpace(c.Operation)
	if op == "" {
		op = "unknown"
	}
	if c.Model == "" {
		return op
	}
	return op + "/" + c.Model
}

func (c Call) logAttrs(ctx context.Context) []any {
	attrs := []any{"operation", c.Operation, "model", c.Model}
	if persona := domain.PersonaFromContext(ctx); persona != "" {
		attrs = append(attrs, "persona", persona)
	}
	return attrs
}

// Listener is told about retries and breaker transitions; metrics.RetrievalMetrics
// implements it.
type Listener interface {
	ObserveModelRetry(operation, model string)
	ObserveModelBreaker(operation, model, state string)
}

// Executor runs model calls with rate limiting, bounded retries and a circuit breaker
// per Call.
type Executor struct {
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
	listener Listener

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// NewExecutor accepts a nil logger (slog.Default) and a nil listener.
func NewExecutor(cfg Config, logger *slog.Logger, listener Listener) *Executor {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.Rate.PerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate.PerSecond), cfg.Rate.Burst)
	}
	return &Executor{
		cfg:      cfg,
		limiter:  limiter,
		logger:   logger.With("component", "model_executor"),
		listener: listener,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) Execute(ctx context.Context, call Call, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s callback is nil", call.key())
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.Breaker.Enabled {
		return e.attempt(ctx, call, fn, classifier)
	}
	_, err := e.breaker(call, classifier).Execute(func() (any, error) {
		return nil, e.attempt(ctx, call, fn, classifier)
	})
	if IsCircuitOpen(err) {
		e.logger.Warn("model_call_rejected", append(call.logAttrs(ctx), "error", err)...)
	}
	return err
}

// attempt runs fn until it succeeds, fails permanently, or the retry policy is spent.
func (e *Executor) attempt(ctx context.Context, call Call, fn func(context.Context) error, classifier ErrorClassifier) error {
	policy := e.cfg.Retry
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait for %s: %w", call.key(), err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if n >= policy.MaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := policy.backoff(n)
		e.logger.Warn("model_call_retry", append(call.logAttrs(ctx),
			"attempt", n,
			"max_attempts", policy.MaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)...)
		if e.listener != nil {
			e.listener.ObserveModelRetry(call.Operation, call.Model)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Executor) breaker(call Call, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	key := call.key()

	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[key]; ok {
		return cb
	}

	policy := e.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        key,
		MaxRequests: policy.HalfOpenMaxCalls,
		Timeout:     policy.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= policy.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			e.logger.Warn("model_breaker_state_change",
				"operation", call.Operation,
				"model", call.Model,
				"from", from.String(),
				"to", to.String(),
			)
			if e.listener != nil {
				e.listener.ObserveModelBreaker(call.Operation, call.Model, to.String())
			}
		},
	})
	e.breakers[key] = cb
	return cb
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}
