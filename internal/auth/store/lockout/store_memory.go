package lockout

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count       int
	windowEnds  time.Time
	lockedUntil time.Time
}

// InMemoryStore applies the lockout policy against an in-process map.
type InMemoryStore struct {
	mu      sync.Mutex
	policy  Policy
	records map[string]*record
	clock   func() time.Time
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

func New(policy Policy, opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		policy:  policy,
		records: make(map[string]*record),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordFailure counts one failed attempt and reports whether the key is
// now locked. The counter resets when the window has passed.
func (s *InMemoryStore) RecordFailure(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	rec, ok := s.records[key]
	if !ok || now.After(rec.windowEnds) {
		rec = &record{windowEnds: now.Add(s.policy.Window)}
		s.records[key] = rec
	}

	rec.count++
	if rec.count >= s.policy.Threshold {
		rec.lockedUntil = now.Add(s.policy.LockDuration)
	}
	return now.Before(rec.lockedUntil), nil
}

// IsLocked reports whether the key is currently locked.
func (s *InMemoryStore) IsLocked(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return false, nil
	}
	now := s.clock()
	if !now.Before(rec.lockedUntil) {
		if now.After(rec.windowEnds) {
			delete(s.records, key)
		}
		return false, nil
	}
	return true, nil
}

// Clear drops the counter and any lock, called after a successful login.
func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
