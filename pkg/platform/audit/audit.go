// Package audit provides the audit logging capability: the Entry model, the
// Logger interface with durable and degraded implementations under store/,
// and the FromContext helper that binds entries to the ambient request scope.
//
// Entries are append-only. A durable logger commits them to tenant-scoped
// storage and supports querying; the degraded logger forwards them to the
// process log and rejects queries with ErrQueryUnsupported.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "cradle/pkg/domain"
)

var (
	// ErrMissingContext reports entry construction without enough
	// identifying context: no established request scope and no explicit
	// tenant and actor. The tenant is never guessed.
	ErrMissingContext = errors.New("missing audit context")

	// ErrQueryUnsupported reports a read against a write-only logger.
	ErrQueryUnsupported = errors.New("audit query not supported")

	// ErrInvalidEntry reports an entry that fails construction invariants.
	ErrInvalidEntry = errors.New("invalid audit entry")

	// ErrInvalidAction reports an action outside the closed set.
	ErrInvalidAction = errors.New("invalid audit action")

	// ErrInvalidClassification reports an unknown sensitivity tag.
	ErrInvalidClassification = errors.New("invalid data classification")

	// ErrInvalidFilter reports malformed query bounds.
	ErrInvalidFilter = errors.New("invalid audit filter")
)

// PersistenceError reports that a durable logger failed to commit an entry.
// It wraps the storage cause and must reach the caller; audit writes are
// never silently dropped.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Logger is the audit capability handed to services.
//
// Log persists one entry and returns its assigned id. Failed writes return a
// *PersistenceError; the caller decides whether the surrounding operation
// aborts or continues degraded.
//
// Query returns committed entries for exactly one tenant, newest first with
// an insertion-order tiebreak. The tenant argument is mandatory; there is no
// cross-tenant read path. Write-only loggers return ErrQueryUnsupported.
type Logger interface {
	Log(ctx context.Context, entry Entry) (uuid.UUID, error)
	Query(ctx context.Context, tenantID id.TenantID, filter Filter) ([]Entry, error)
}

const (
	// DefaultQueryLimit applies when a filter leaves Limit unset.
	DefaultQueryLimit = 100

	// MaxQueryLimit caps a single query page.
	MaxQueryLimit = 1000
)

// Filter narrows a tenant-scoped query. Zero-valued fields are ignored.
// Start and End bound Timestamp inclusively.
//
// Offset pages are not stable under concurrent inserts: rows can shift
// between pages, skipping or repeating entries. Callers walking a live
// trail should keep the window bounds fixed and page within them.
type Filter struct {
	ActorID      string
	Action       Action
	ResourceType string
	ResourceID   string
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}

// Normalize applies limit defaults and rejects malformed bounds. Stores call
// it before building queries, so hand-built filters get the same treatment
// as HTTP-parsed ones.
func (f Filter) Normalize() (Filter, error) {
	if f.Limit < 0 {
		return Filter{}, fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	if f.Offset < 0 {
		return Filter{}, fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	if f.Limit == 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	if f.Action != "" && !f.Action.IsValid() {
		return Filter{}, fmt.Errorf("%w: unknown action %q", ErrInvalidFilter, string(f.Action))
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return Filter{}, fmt.Errorf("%w: end precedes start", ErrInvalidFilter)
	}
	return f, nil
}
