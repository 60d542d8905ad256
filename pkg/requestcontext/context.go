// Package requestcontext provides the ambient per-request state: request id,
// tenant, client metadata, and - once credential verification has run - the
// resolved identity. One scope is established per logical request and is
// invisible to every other request, including requests multiplexed onto the
// same OS threads by the scheduler; context.Context is the unit of
// propagation, so the scope follows the request across every suspension
// point.
//
// The scope is established exactly once (by the HTTP establisher middleware,
// or directly in tests and background jobs) and mutated exactly once, by
// identity resolution. All other access returns read-only snapshots.
// Resolution is visible scope-wide: a deferred observer installed before
// authentication still sees the resolved user afterwards.
//
// Child tasks spawned by a request share the parent's scope. A child that
// needs an independent scope (so its own resolution cannot leak back) forks
// first:
//
//	go func(ctx context.Context) { ... }(requestcontext.Fork(ctx))
//
// Fork snapshots the parent at call time; later changes on either side stay
// on that side.
//
// Usage in services (read values):
//
//	rc, err := requestcontext.Current(ctx)   // fails outside a scope
//	rc, ok := requestcontext.CurrentOptional(ctx) // background-job friendly
//
// Usage at the single mutation point:
//
//	err := requestcontext.ResolveIdentity(ctx, requestcontext.Identity{...})
package requestcontext

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	id "cradle/pkg/domain"
	pstrings "cradle/pkg/platform/strings"
)

var (
	// ErrNoContext is returned by Current outside an established scope.
	// This is a programmer error: the caller ran request-scoped code on a
	// bare context. Callers must not swallow it and fall back to a default
	// tenant.
	ErrNoContext = errors.New("no request context established")

	// ErrIdentityResolved is returned by ResolveIdentity when the scope's
	// identity was already set. The second caller is the bug; the original
	// identity stays in place.
	ErrIdentityResolved = errors.New("identity already resolved for this request context")

	// ErrInvalidIdentity is returned by ResolveIdentity for an identity
	// without a user id.
	ErrInvalidIdentity = errors.New("identity must carry a user id")
)

// Context is a read-only snapshot of one request's ambient state. UserID,
// UserEmail, UserRoles, and SessionID stay zero until identity resolution.
type Context struct {
	RequestID string
	TenantID  id.TenantID
	UserID    id.UserID
	UserEmail string
	UserRoles []string
	SessionID id.SessionID
	ClientIP  string
	UserAgent string

	resolved bool
}

// Resolved reports whether identity resolution has run for this snapshot's
// scope (as of snapshot time).
func (c Context) Resolved() bool { return c.resolved }

// Metadata seeds a new scope from inbound request metadata.
type Metadata struct {
	RequestID string
	TenantID  id.TenantID
	ClientIP  string
	UserAgent string
}

// Identity is the verified principal set by the single permitted mutation.
type Identity struct {
	UserID    id.UserID
	Email     string
	Roles     []string
	TenantID  id.TenantID
	SessionID id.SessionID
}

// scope is the per-request holder. It is installed once and shared by the
// whole call graph of that request; the mutex covers the one late write
// (identity resolution) against concurrent snapshot reads.
type scope struct {
	mu       sync.RWMutex
	data     Context
	resolved bool
}

type (
	scopeKey       struct{}
	requestTimeKey struct{}
)

// Establish installs a fresh scope seeded from md. It is called once per
// logical request by the establisher middleware; tests and background jobs
// call it directly to create an independent scope. Establishing on a context
// that already carries a scope creates a new, unrelated scope that shadows
// the old one for this subtree.
func Establish(ctx context.Context, md Metadata) context.Context {
	s := &scope{
		data: Context{
			RequestID: md.RequestID,
			TenantID:  md.TenantID,
			ClientIP:  md.ClientIP,
			UserAgent: md.UserAgent,
		},
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// Current returns a snapshot of the ambient request context, or ErrNoContext
// outside an established scope.
func Current(ctx context.Context) (Context, error) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return Context{}, ErrNoContext
	}
	return s.snapshot(), nil
}

// CurrentOptional is the non-failing variant for code paths that may
// legitimately run outside a request, such as background jobs and stream
// consumers.
func CurrentOptional(ctx context.Context) (Context, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return Context{}, false
	}
	return s.snapshot(), true
}

// RequestID returns the current request id, or "" outside a scope. A log
// attribute convenience; everything else should go through Current.
func RequestID(ctx context.Context) string {
	rc, ok := CurrentOptional(ctx)
	if !ok {
		return ""
	}
	return rc.RequestID
}

// ResolveIdentity sets the verified principal on the ambient scope. This is
// the single permitted mutation of a request context and may run at most
// once per scope; a second call returns ErrIdentityResolved and leaves the
// original identity untouched. A tenant carried by the identity replaces the
// header-derived tenant: the verified principal's tenant is authoritative.
func ResolveIdentity(ctx context.Context, ident Identity) error {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return ErrNoContext
	}
	if ident.UserID.IsZero() {
		return ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return ErrIdentityResolved
	}
	s.resolved = true
	s.data.UserID = ident.UserID
	s.data.UserEmail = ident.Email
	s.data.UserRoles = pstrings.DedupeAndTrimLower(ident.Roles)
	s.data.SessionID = ident.SessionID
	if !ident.TenantID.IsZero() {
		s.data.TenantID = ident.TenantID
	}
	return nil
}

// Fork gives a spawned child task its own scope, initialized from a snapshot
// of the parent at call time. Mutations on either side (the parent's pending
// identity resolution, the child's own) never cross over. Without a parent
// scope, ctx is returned unchanged.
func Fork(ctx context.Context) context.Context {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return ctx
	}
	snap := s.snapshot()
	child := &scope{data: snap, resolved: snap.resolved}
	return context.WithValue(ctx, scopeKey{}, child)
}

func (s *scope) snapshot() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.data
	snap.resolved = s.resolved
	if len(s.data.UserRoles) > 0 {
		snap.UserRoles = append([]string(nil), s.data.UserRoles...)
	}
	return snap
}

// HasRole reports whether the snapshot's resolved identity carries the role.
// Matching is case-insensitive; stored roles are already lowercased.
func (c Context) HasRole(role string) bool {
	for _, r := range c.UserRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
