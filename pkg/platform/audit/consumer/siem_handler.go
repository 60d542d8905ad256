package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"cradle/internal/platform/kafka/consumer"
	audit "cradle/pkg/platform/audit"
)

// SIEMHandler re-emits consumed audit entries as structured log lines for
// downstream log shippers. Failed operations and failed logins are emitted
// at WARN so alerting rules can key on level alone.
type SIEMHandler struct {
	logger *slog.Logger
}

// NewSIEMHandler creates a SIEM forwarding handler.
func NewSIEMHandler(logger *slog.Logger) *SIEMHandler {
	return &SIEMHandler{logger: logger}
}

// Handle forwards one audit entry. Malformed messages are logged and
// committed; forwarding itself cannot fail.
func (h *SIEMHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	entryID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.Warn("failed to parse audit entry key",
			"key", string(msg.Key),
			"error", err,
		)
		return nil // Commit to avoid redelivery
	}

	var entry audit.Entry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		h.logger.Warn("failed to unmarshal audit entry",
			"entry_id", entryID,
			"error", err,
		)
		return nil
	}

	level := slog.LevelInfo
	if !entry.Success || entry.Action == audit.ActionLoginFailed {
		level = slog.LevelWarn
	}

	args := []any{
		"log_type", "audit",
		"audit_id", entry.ID.String(),
		"action", string(entry.Action),
		"category", string(entry.Action.Category()),
		"actor_id", entry.ActorID,
		"actor_type", string(entry.ActorType),
		"resource_type", entry.ResourceType,
		"tenant_id", entry.TenantID.String(),
		"audit_timestamp", entry.Timestamp,
		"success", entry.Success,
		"data_classification", string(entry.Classification),
	}
	if entry.ActorIP != "" {
		args = append(args, "actor_ip", entry.ActorIP)
	}
	if entry.ResourceID != "" {
		args = append(args, "resource_id", entry.ResourceID)
	}
	if entry.RequestID != "" {
		args = append(args, "request_id", entry.RequestID)
	}
	if entry.ErrorMessage != "" {
		args = append(args, "error", entry.ErrorMessage)
	}

	h.logger.Log(ctx, level, "audit stream entry", args...)
	return nil
}
