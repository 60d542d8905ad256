// Package logsink provides the degraded audit logger. Entries go to the
// structured process log instead of durable storage, which keeps operations
// observable when the database is unavailable but holds nothing queryable.
package logsink

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "cradle/pkg/domain"
	audit "cradle/pkg/platform/audit"
)

// Store implements audit.Logger against a structured log stream.
type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Log writes the entry to the diagnostic stream. The log_type marker keeps
// these lines separable from ordinary application logs for downstream
// collectors.
func (s *Store) Log(ctx context.Context, entry audit.Entry) (uuid.UUID, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return uuid.Nil, err
	}

	args := []any{
		"log_type", "audit",
		"audit_id", entry.ID.String(),
		"actor_id", entry.ActorID,
		"actor_type", string(entry.ActorType),
		"action", string(entry.Action),
		"resource_type", entry.ResourceType,
		"tenant_id", entry.TenantID.String(),
		"audit_timestamp", entry.Timestamp,
		"success", entry.Success,
		"data_classification", string(entry.Classification),
	}
	if entry.ActorIP != "" {
		args = append(args, "actor_ip", entry.ActorIP)
	}
	if entry.ActionDetail != "" {
		args = append(args, "action_detail", entry.ActionDetail)
	}
	if entry.ResourceID != "" {
		args = append(args, "resource_id", entry.ResourceID)
	}
	if entry.RequestID != "" {
		args = append(args, "request_id", entry.RequestID)
	}
	if entry.SessionID != "" {
		args = append(args, "session_id", entry.SessionID)
	}
	if entry.ErrorMessage != "" {
		args = append(args, "error", entry.ErrorMessage)
	}
	if entry.OldValues != nil {
		args = append(args, "old_values", entry.OldValues)
	}
	if entry.NewValues != nil {
		args = append(args, "new_values", entry.NewValues)
	}

	s.logger.InfoContext(ctx, "audit entry", args...)
	return entry.ID, nil
}

// Query never succeeds here. The warning keeps a degraded deployment from
// looking like one with a genuinely empty audit history.
func (s *Store) Query(ctx context.Context, tenantID id.TenantID, _ audit.Filter) ([]audit.Entry, error) {
	s.logger.WarnContext(ctx, "audit query against log sink",
		"log_type", "audit",
		"tenant_id", tenantID.String(),
	)
	return nil, audit.ErrQueryUnsupported
}
