package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"moviecatalog/internal/metrics"
)

const (
	DefaultIdleTTL = 30 * time.Minute
	maxIDLength    = 128
)

var ErrInvalidSessionID = errors.New("invalid session id")

// Manager is the registry of live sessions. Sessions that stay idle for
// the configured TTL are closed and dropped.
type Manager struct {
	deps     Deps
	logger   *slog.Logger
	sessions *cache.Cache
	mu       sync.Mutex
}

func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		deps:     deps,
		logger:   logger,
		sessions: cache.New(idleTTL, cleanupInterval(idleTTL)),
	}
	m.sessions.OnEvicted(func(id string, v any) {
		if s, ok := v.(*Session); ok {
			s.Close()
			metrics.SessionsActive.Dec()
			m.logger.Debug("session closed", slog.String("session", id))
		}
	})
	return m
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// Open returns the session with the given id, creating it when needed. An
// empty id creates a session with a generated one.
func (m *Manager) Open(ctx context.Context, id string) (*Session, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	} else if !validID(id) {
		return nil, false, ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.sessions.Get(id); ok {
		s := v.(*Session)
		m.sessions.SetDefault(id, s)
		return s, false, nil
	}
	// An expired entry with this id may still await the janitor.
	m.sessions.DeleteExpired()
	s := New(ctx, id, m.deps)
	m.sessions.SetDefault(id, s)
	metrics.SessionsActive.Inc()
	m.logger.Debug("session opened", slog.String("session", id))
	return s, true, nil
}

// Get returns a live session and extends its idle deadline.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(*Session)
	m.sessions.SetDefault(id, s)
	return s, true
}

// Remove closes and drops a session. It reports whether it existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions.Get(id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.sessions.Delete(id)
	return true
}

// Len counts the open sessions.
func (m *Manager) Len() int {
	return m.sessions.ItemCount()
}

// Close closes every session.
func (m *Manager) Close() {
	for id := range m.sessions.Items() {
		m.sessions.Delete(id)
	}
}

func validID(id string) bool {
	if len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
