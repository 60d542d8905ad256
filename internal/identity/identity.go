// Package identity holds the user model and credential verification shared
// by login and user management. Users belong to exactly one tenant; email
// uniqueness and every lookup are scoped to that tenant.
package identity

import (
	"fmt"
	"time"

	id "cradle/pkg/domain"
	"cradle/pkg/email"
	pstrings "cradle/pkg/platform/strings"
)

// RoleUser is assigned to accounts created without explicit roles.
const RoleUser = "user"

// RoleAdmin unlocks the user-management and audit-query surfaces.
const RoleAdmin = "admin"

// User is the principal record for one tenant member.
//
// Invariants:
//   - Email is normalized (lowercase, trimmed) and unique within the tenant
//   - Roles are lowercase, deduplicated, never empty
//   - TenantID is immutable after construction
type User struct {
	ID           id.UserID   `json:"id"`
	TenantID     id.TenantID `json:"tenant_id"`
	Email        string      `json:"email"`
	FullName     string      `json:"full_name"`
	Roles        []string    `json:"roles"`
	PasswordHash string      `json:"-"` // Never serialize - contains bcrypt hash
	Active       bool        `json:"is_active"`
	Verified     bool        `json:"is_verified"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	LastLoginAt  *time.Time  `json:"last_login_at,omitempty"`
}

// NewUser constructs an active user. The email is validated and normalized;
// a missing full name is derived from the email local part; roles are
// normalized and default to RoleUser.
func NewUser(userID id.UserID, tenantID id.TenantID, emailAddr, fullName, passwordHash string, roles []string, now time.Time) (*User, error) {
	if err := email.Validate(emailAddr); err != nil {
		return nil, err
	}
	normalized := email.Normalize(emailAddr)

	if fullName == "" {
		first, last := email.DeriveNameFromEmail(normalized)
		fullName = fmt.Sprintf("%s %s", first, last)
	}

	roles = pstrings.DedupeAndTrimLower(roles)
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}

	return &User{
		ID:           userID,
		TenantID:     tenantID,
		Email:        normalized,
		FullName:     fullName,
		Roles:        roles,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate shared state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	dup := *u
	dup.Roles = append([]string(nil), u.Roles...)
	if u.LastLoginAt != nil {
		at := *u.LastLoginAt
		dup.LastLoginAt = &at
	}
	return &dup
}
