package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	id "cradle/pkg/domain"
	audit "cradle/pkg/platform/audit"
	txcontext "cradle/pkg/platform/tx"
)

// Store implements audit.Logger against PostgreSQL. Writes join the caller's
// transaction when the context carries one, so an audit entry commits or
// rolls back together with the operation it records. Entries are append-only;
// there is no update or delete path.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides capture-time defaulting. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Log inserts one entry. Storage failures surface as *audit.PersistenceError
// and must reach the caller; this layer never swallows a failed write.
func (s *Store) Log(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if err := entry.Validate(); err != nil {
		return uuid.Nil, err
	}

	oldValues, err := marshalValues(entry.OldValues)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := marshalValues(entry.NewValues)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal new values: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, actor_id, actor_type, actor_ip,
			action, action_detail, resource_type, resource_id,
			tenant_id, request_id, session_id, timestamp,
			success, error_message, old_values, new_values, data_classification
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		string(entry.ActorType),
		entry.ActorIP,
		string(entry.Action),
		entry.ActionDetail,
		entry.ResourceType,
		entry.ResourceID,
		entry.TenantID.String(),
		entry.RequestID,
		entry.SessionID,
		entry.Timestamp,
		entry.Success,
		entry.ErrorMessage,
		oldValues,
		newValues,
		string(entry.Classification),
	)
	if err != nil {
		return uuid.Nil, &audit.PersistenceError{Op: "insert audit entry", Err: err}
	}
	return entry.ID, nil
}

// Query returns the tenant's matching entries, newest first with the
// insertion sequence breaking timestamp ties. The tenant predicate is always
// present and always first; filters only ever narrow within it.
func (s *Store) Query(ctx context.Context, tenantID id.TenantID, filter audit.Filter) ([]audit.Entry, error) {
	if tenantID.IsZero() {
		return nil, fmt.Errorf("%w: tenant id is required", audit.ErrInvalidFilter)
	}
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, actor_id, actor_type, actor_ip,
		       action, action_detail, resource_type, resource_id,
		       tenant_id, request_id, session_id, timestamp,
		       success, error_message, old_values, new_values, data_classification
		FROM audit_entries
		WHERE tenant_id = $1`)
	args := []any{tenantID.String()}

	if f.ActorID != "" {
		args = append(args, f.ActorID)
		fmt.Fprintf(&sb, " AND actor_id = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, string(f.Action))
		fmt.Fprintf(&sb, " AND action = $%d", len(args))
	}
	if f.ResourceType != "" {
		args = append(args, f.ResourceType)
		fmt.Fprintf(&sb, " AND resource_type = $%d", len(args))
	}
	if f.ResourceID != "" {
		args = append(args, f.ResourceID)
		fmt.Fprintf(&sb, " AND resource_id = $%d", len(args))
	}
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		fmt.Fprintf(&sb, " AND timestamp >= $%d", len(args))
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		fmt.Fprintf(&sb, " AND timestamp <= $%d", len(args))
	}

	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&sb, " ORDER BY timestamp DESC, seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry

	for rows.Next() {
		var (
			e              audit.Entry
			actorType      string
			action         string
			tenant         string
			classification string
			oldValues      []byte
			newValues      []byte
		)

		err := rows.Scan(
			&e.ID,
			&e.ActorID,
			&actorType,
			&e.ActorIP,
			&action,
			&e.ActionDetail,
			&e.ResourceType,
			&e.ResourceID,
			&tenant,
			&e.RequestID,
			&e.SessionID,
			&e.Timestamp,
			&e.Success,
			&e.ErrorMessage,
			&oldValues,
			&newValues,
			&classification,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		e.ActorType = audit.ActorType(actorType)
		e.Action = audit.Action(action)
		e.TenantID = id.TenantID(tenant)
		e.Classification = audit.Classification(classification)

		if len(oldValues) > 0 {
			if err := json.Unmarshal(oldValues, &e.OldValues); err != nil {
				return nil, fmt.Errorf("decode old values: %w", err)
			}
		}
		if len(newValues) > 0 {
			if err := json.Unmarshal(newValues, &e.NewValues); err != nil {
				return nil, fmt.Errorf("decode new values: %w", err)
			}
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

// marshalValues encodes a diff map for a JSONB column. A nil map stays NULL
// so absent diffs round-trip as absent rather than as empty objects.
func marshalValues(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}
