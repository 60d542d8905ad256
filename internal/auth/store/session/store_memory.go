// Package session stores live sessions with a TTL: Redis in distributed
// deployments, a mutex-guarded map for tests and single-process wiring.
// Both backends treat an expired session exactly like a missing one.
package session

import (
	"context"
	"sync"
	"time"

	"cradle/internal/auth/models"
	id "cradle/pkg/domain"
	"cradle/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in a map with lazy expiry eviction.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
	clock    func() time.Time
}

type Option func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		sessions: make(map[id.SessionID]*models.Session),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a session. A session that is already expired is rejected
// with sentinel.ErrExpired; duplicate ids with sentinel.ErrAlreadyUsed.
func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.Expired(s.clock()) {
		return sentinel.ErrExpired
	}
	if _, exists := s.sessions[session.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// FindByID returns a live session. Expired sessions are evicted and
// reported as not found, matching the Redis TTL behavior.
func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if session.Expired(s.clock()) {
		delete(s.sessions, sessionID)
		return nil, sentinel.ErrNotFound
	}
	return session.Clone(), nil
}

// Touch stamps the session's last activity.
func (s *InMemoryStore) Touch(_ context.Context, sessionID id.SessionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Expired(s.clock()) {
		delete(s.sessions, sessionID)
		return sentinel.ErrNotFound
	}
	session.LastSeenAt = at
	return nil
}

// Delete removes the session and returns it, so logout can attribute the
// entry it records. Missing or expired sessions return ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.sessions, sessionID)
	if session.Expired(s.clock()) {
		return nil, sentinel.ErrNotFound
	}
	return session, nil
}
