// Package domain provides typed identifiers shared across services.
//
// IDs are distinct types so a session id can never be passed where a user id
// is expected. User and session ids are UUIDs. Tenant ids are opaque strings
// chosen by operators ("alpha", "acme-prod", a UUID string); they are
// validated, never transformed, and never inferred from data. DefaultTenant
// exists only as an explicit establisher fallback for single-tenant
// deployments.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "cradle/pkg/domain-errors"
)

// UserID identifies a user within a tenant.
type UserID uuid.UUID

// SessionID identifies an authenticated session.
type SessionID uuid.UUID

// TenantID is the isolation boundary key. Every audit record and request
// context belongs to exactly one tenant.
type TenantID string

// DefaultTenant is the sentinel tenant for single-tenant deployments. The
// request establisher applies it explicitly; nothing else may default to it.
const DefaultTenant TenantID = "default"

const maxTenantIDLen = 128

func NewUserID() UserID { return UserID(uuid.New()) }

func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id SessionID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

func (id TenantID) String() string { return string(id) }

func (id TenantID) IsZero() bool { return id == "" }

// ParseUserID parses and validates a user id at a trust boundary.
func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw, "user id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseSessionID parses and validates a session id at a trust boundary.
func ParseSessionID(raw string) (SessionID, error) {
	u, err := parseUUID(raw, "session id")
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

// ParseTenantID validates an opaque tenant id at a trust boundary. Accepted:
// 1-128 characters from [A-Za-z0-9._-]. The value is not case-folded or
// otherwise normalized; an opaque id must survive round-trips unchanged.
func ParseTenantID(raw string) (TenantID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	}
	if len(trimmed) > maxTenantIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant id exceeds 128 characters")
	}
	for _, r := range trimmed {
		if !isTenantIDRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "tenant id contains invalid characters")
		}
	}
	return TenantID(trimmed), nil
}

func isTenantIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.':
		return true
	}
	return false
}

func parseUUID(raw, kind string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be the nil UUID")
	}
	return u, nil
}
