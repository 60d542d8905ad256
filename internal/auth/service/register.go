package service

import (
	"context"
	"errors"

	"cradle/internal/auth/models"
	"cradle/internal/identity"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

// minPasswordLength matches the user-management service; registration is
// just another way to create an account.
const minPasswordLength = 8

// RegisterParams describe a self-registered account. The tenant comes from
// the request scope; roles always start as the default.
type RegisterParams struct {
	Email    string
	FullName string
	Password string
}

// Register creates an account in the caller's tenant and logs it straight
// in: the new user gets a session and a token pair without a second round
// trip. The creation entry and the user row commit in one transaction.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}
	if len(params.Password) < minPasswordLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}
	hash, err := identity.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)

	var user *identity.User
	var sess *models.Session
	err = s.runner.Run(ctx, func(txCtx context.Context) error {
		created, err := identity.NewUser(id.NewUserID(), rc.TenantID, params.Email, params.FullName, hash, nil, now)
		if err != nil {
			return err
		}

		if err := s.users.Create(txCtx, created); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "email already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}

		sess = s.newSession(rc, created, now)
		if err := s.sessions.Create(txCtx, sess); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
		}

		// The scope is still anonymous here; the new account is its own
		// actor.
		entry, err := audit.FromContext(txCtx, audit.ActionCreate, "user", created.ID.String(),
			audit.WithActor(created.ID.String()),
			audit.WithSession(sess.ID.String()),
			audit.WithDetail("self-registration"),
			audit.WithChange(nil, map[string]any{
				"email":     created.Email,
				"full_name": created.FullName,
				"roles":     created.Roles,
			}),
		)
		if err != nil {
			return err
		}
		if _, err := s.recorder.Record(txCtx, entry); err != nil {
			return err
		}

		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Resolution waits until the account durably exists.
	resolveErr := requestcontext.ResolveIdentity(ctx, requestcontext.Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Roles:     user.Roles,
		TenantID:  user.TenantID,
		SessionID: sess.ID,
	})
	if resolveErr != nil {
		return nil, dErrors.Wrap(resolveErr, dErrors.CodeInternal, "failed to resolve identity")
	}

	pair, err := s.issueTokens(user, sess.ID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"tenant_id", user.TenantID.String(),
	)

	return &AuthResult{TokenPair: pair, User: user, Session: sess}, nil
}
