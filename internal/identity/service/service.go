// Package service implements tenant-scoped user management. The caller's
// tenant always comes from the ambient request scope; there is no parameter
// to operate on another tenant, so cross-tenant ids simply miss. Mutations
// record their audit entry inside the same transaction as the change.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cradle/internal/identity"
	"cradle/internal/platform/metrics"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/platform/tx"
	"cradle/pkg/requestcontext"
)

// minPasswordLength applies to registration, admin creation, and password
// changes alike.
const minPasswordLength = 8

// UserStore is the persistence the service needs. Both store backends
// satisfy it.
type UserStore interface {
	Create(ctx context.Context, user *identity.User) error
	FindByID(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*identity.User, error)
	List(ctx context.Context, tenantID id.TenantID) ([]*identity.User, error)
	Update(ctx context.Context, user *identity.User) error
	Deactivate(ctx context.Context, tenantID id.TenantID, userID id.UserID, at time.Time) error
}

// Recorder persists audit entries with fail-closed semantics; a failed
// record aborts the surrounding operation.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (uuid.UUID, error)
}

// Service orchestrates user management for one tenant per call.
type Service struct {
	users    UserStore
	recorder Recorder
	runner   tx.Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxRunner couples store writes and audit entries into one transaction.
// Memory-backed wiring keeps the default no-op runner.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

func New(users UserStore, recorder Recorder, opts ...Option) *Service {
	s := &Service{
		users:    users,
		recorder: recorder,
		runner:   tx.NoopRunner{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// callerScope resolves the ambient request scope. Every operation is
// tenant-scoped through it; calling without an established scope is a
// wiring bug, not a client error.
func callerScope(ctx context.Context) (requestcontext.Context, error) {
	rc, err := requestcontext.Current(ctx)
	if err != nil {
		return requestcontext.Context{}, dErrors.Wrap(err, dErrors.CodeInternal, "request scope missing")
	}
	return rc, nil
}

func wrapUserErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "email already in use")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "user store failure")
	}
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}
	return nil
}

func (s *Service) incrementUsersCreated() {
	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
}
