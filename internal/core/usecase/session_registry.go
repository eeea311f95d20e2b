package usecase

import (
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSessionCacheSize = 256

// SessionRegistry keeps one Session per user key and evicts the least recently used ones.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	factory  func() *Session
	logger   *slog.Logger
}

func NewSessionRegistry(size int, factory func() *Session, logger *slog.Logger) (*SessionRegistry, error) {
	if size <= 0 {
		size = DefaultSessionCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &SessionRegistry{factory: factory, logger: logger.With("component", "session_registry")}
	cache, err := lru.NewWithEvict(size, func(key string, s *Session) {
		r.logger.Info("session_evicted", "user", key, "session_id", s.ID(), "persona", s.Identity())
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	r.sessions = cache
	return r, nil
}

// Get returns the user's session, creating an empty one on first use.
func (r *SessionRegistry) Get(user string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions.Get(user); ok {
		return s
	}
	s := r.factory()
	r.sessions.Add(user, s)
	r.logger.Debug("session_created", "user", user, "session_id", s.ID(), "sessions", r.Len())
	return s
}

func (r *SessionRegistry) Len() int {
	return r.sessions.Len()
}
