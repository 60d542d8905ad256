// Package models holds the auth domain records shared by the service and
// its stores.
package models

import (
	"time"

	id "cradle/pkg/domain"
)

// Session is one authenticated login. It lives in a TTL store; expiry is
// enforced by the store (Redis TTL, lazy eviction in memory), so a session
// that can be found is live.
type Session struct {
	ID       id.SessionID `json:"id"`
	UserID   id.UserID    `json:"user_id"`
	TenantID id.TenantID  `json:"tenant_id"`

	// Device is the human-readable summary ("Chrome on Mac OS X") shown in
	// audit detail; Fingerprint is the binding hash checked on refresh.
	Device      string `json:"device,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Expired reports whether the session's lifetime has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Clone returns an independent copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	return &dup
}
