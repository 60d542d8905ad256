// Package service answers audit-trail queries for the caller's tenant. The
// tenant always comes from the ambient request scope; there is no parameter
// to read another tenant's trail. Reads of the trail are not themselves
// recorded.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cradle/internal/identity"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/requestcontext"
)

// QueryParams narrows a trail query. Zero-valued fields are ignored; Start
// and End bound the entry timestamp inclusively.
type QueryParams struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}

// Service exposes the read side of the audit capability.
type Service struct {
	logs   audit.Logger
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(logs audit.Logger, opts ...Option) *Service {
	s := &Service{
		logs:   logs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns committed entries for the caller's tenant, newest first.
// The caller must be authenticated and carry the admin role. A write-only
// logger surfaces audit.ErrQueryUnsupported through the returned error so
// the transport can report the degraded capability instead of a plain
// failure.
func (s *Service) Query(ctx context.Context, params QueryParams) ([]audit.Entry, error) {
	rc, err := requestcontext.Current(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "request scope missing")
	}
	if !rc.Resolved() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !rc.HasRole(identity.RoleAdmin) {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	if rc.TenantID.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant is required")
	}

	filter, err := params.filter()
	if err != nil {
		return nil, err
	}

	entries, err := s.logs.Query(ctx, rc.TenantID, filter)
	if err != nil {
		if errors.Is(err, audit.ErrQueryUnsupported) {
			s.logger.WarnContext(ctx, "audit query against write-only logger",
				"tenant_id", rc.TenantID.String(),
				"request_id", rc.RequestID,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit query unavailable")
		}
		if errors.Is(err, audit.ErrInvalidFilter) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid audit filter")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit entries")
	}
	return entries, nil
}

// filter translates the params into a normalized store filter. Normalizing
// here means a bad range or action comes back as CodeInvalidInput before the
// store is touched.
func (p QueryParams) filter() (audit.Filter, error) {
	f := audit.Filter{
		ActorID:      p.ActorID,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		Start:        p.Start,
		End:          p.End,
		Limit:        p.Limit,
		Offset:       p.Offset,
	}
	if p.Action != "" {
		action, err := audit.ParseAction(p.Action)
		if err != nil {
			return audit.Filter{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid action filter")
		}
		f.Action = action
	}
	normalized, err := f.Normalize()
	if err != nil {
		return audit.Filter{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid audit filter")
	}
	return normalized, nil
}
