// Package handler exposes the tenant audit trail over HTTP. All routes sit
// behind authentication and the admin role gate; the tenant is whatever the
// caller's resolved identity carries.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"cradle/internal/audit/service"
	"cradle/internal/identity"
	"cradle/internal/transport/http/shared"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/middleware/admin"
	mwauth "cradle/pkg/platform/middleware/auth"
	"cradle/pkg/requestcontext"
)

// Service defines the interface for audit trail queries.
type Service interface {
	Query(ctx context.Context, params service.QueryParams) ([]audit.Entry, error)
}

// Handler handles audit-trail endpoints.
type Handler struct {
	logger    *slog.Logger
	audits    Service
	validator mwauth.TokenValidator
}

// New creates a new audit Handler.
func New(audits Service, validator mwauth.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		audits:    audits,
		validator: validator,
	}
}

// Register registers the audit routes with the chi router. The parent router
// establishes the request scope; this subrouter layers authentication and
// the admin gate on top of it.
func (h *Handler) Register(r chi.Router) {
	auditRouter := chi.NewRouter()
	auditRouter.Use(mwauth.RequireAuth(h.validator, h.logger))
	auditRouter.Use(admin.RequireRole(identity.RoleAdmin, h.logger))
	auditRouter.Get("/entries", h.handleQueryEntries)

	r.Mount("/v1/audit", auditRouter)
}

type queryResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// handleQueryEntries returns audit entries for the caller's tenant.
func (h *Handler) handleQueryEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	params, err := parseQueryParams(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid audit query",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	entries, err := h.audits.Query(ctx, params)
	if err != nil {
		if errors.Is(err, audit.ErrQueryUnsupported) {
			h.logger.WarnContext(ctx, "audit query while storage degraded",
				"request_id", requestID,
			)
			shared.WriteJSON(w, http.StatusNotImplemented, map[string]string{
				"error":             "audit_query_unavailable",
				"error_description": "audit storage is running degraded; queries are temporarily unavailable",
			})
			return
		}
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to query audit entries",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to query audit entries"))
			return
		}
		h.logger.WarnContext(ctx, "audit query rejected",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	if entries == nil {
		entries = []audit.Entry{}
	}
	shared.WriteJSON(w, http.StatusOK, queryResponse{
		Entries: entries,
		Count:   len(entries),
	})
}

func parseQueryParams(r *http.Request) (service.QueryParams, error) {
	q := r.URL.Query()
	params := service.QueryParams{
		ActorID:      q.Get("actor_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
	}

	var err error
	if params.Start, err = parseTime(q.Get("start")); err != nil {
		return service.QueryParams{}, dErrors.New(dErrors.CodeInvalidInput, "start must be RFC3339")
	}
	if params.End, err = parseTime(q.Get("end")); err != nil {
		return service.QueryParams{}, dErrors.New(dErrors.CodeInvalidInput, "end must be RFC3339")
	}
	if params.Limit, err = parseInt(q.Get("limit")); err != nil {
		return service.QueryParams{}, dErrors.New(dErrors.CodeInvalidInput, "limit must be an integer")
	}
	if params.Offset, err = parseInt(q.Get("offset")); err != nil {
		return service.QueryParams{}, dErrors.New(dErrors.CodeInvalidInput, "offset must be an integer")
	}
	return params, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
