package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"cradle/internal/identity"
	id "cradle/pkg/domain"
	"cradle/pkg/platform/sentinel"
)

// InMemory is a mutex-guarded user store. Reads and writes exchange clones
// so callers never share state with the store.
type InMemory struct {
	mu     sync.RWMutex
	users  map[id.TenantID]map[id.UserID]*identity.User
	emails map[id.TenantID]map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:  make(map[id.TenantID]map[id.UserID]*identity.User),
		emails: make(map[id.TenantID]map[string]id.UserID),
	}
}

// Create stores a new user. Returns sentinel.ErrAlreadyUsed when the email
// is already taken within the tenant.
func (s *InMemory) Create(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[user.TenantID][user.Email]; taken {
		return sentinel.ErrAlreadyUsed
	}

	if s.users[user.TenantID] == nil {
		s.users[user.TenantID] = make(map[id.UserID]*identity.User)
		s.emails[user.TenantID] = make(map[string]id.UserID)
	}
	s.users[user.TenantID][user.ID] = user.Clone()
	s.emails[user.TenantID][user.Email] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID, userID id.UserID) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[tenantID][userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return user.Clone(), nil
}

func (s *InMemory) FindByEmail(_ context.Context, tenantID id.TenantID, email string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.emails[tenantID][email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.users[tenantID][userID].Clone(), nil
}

// List returns the tenant's users ordered by creation time, then email for
// a stable order within one instant.
func (s *InMemory) List(_ context.Context, tenantID id.TenantID) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*identity.User, 0, len(s.users[tenantID]))
	for _, user := range s.users[tenantID] {
		users = append(users, user.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].Email < users[j].Email
	})
	return users, nil
}

// Update replaces the stored user. Returns sentinel.ErrNotFound for unknown
// users and sentinel.ErrAlreadyUsed when an email change collides with
// another user in the tenant.
func (s *InMemory) Update(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.TenantID][user.ID]
	if !ok {
		return sentinel.ErrNotFound
	}

	if current.Email != user.Email {
		if _, taken := s.emails[user.TenantID][user.Email]; taken {
			return sentinel.ErrAlreadyUsed
		}
		delete(s.emails[user.TenantID], current.Email)
		s.emails[user.TenantID][user.Email] = user.ID
	}

	s.users[user.TenantID][user.ID] = user.Clone()
	return nil
}

// RecordLogin stamps the user's last login time.
func (s *InMemory) RecordLogin(_ context.Context, tenantID id.TenantID, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[tenantID][userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	t := at
	user.LastLoginAt = &t
	return nil
}

// Deactivate clears the active flag without touching anything else.
func (s *InMemory) Deactivate(_ context.Context, tenantID id.TenantID, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[tenantID][userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	user.Active = false
	user.UpdatedAt = at
	return nil
}
