package service

import (
	"context"
	"fmt"

	"cradle/internal/auth/store/lockout"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/email"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/requestcontext"
)

// LoginParams carry the submitted credentials. Tenant, client IP, and user
// agent come from the ambient request scope.
type LoginParams struct {
	Email    string
	Password string
}

// Login verifies credentials and issues a session with a token pair.
//
// A locked account, an unknown email, and a wrong password all answer with
// the same message, so the response never confirms whether an account
// exists. Failed attempts count toward lockout and are recorded as
// login_failed entries; a successful login stamps the user, records a login
// entry in the same transaction, and resets the lockout counter.
func (s *Service) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	normalized := email.Normalize(params.Email)
	key := lockout.Key(rc.TenantID, normalized)

	if locked := s.isLocked(ctx, key); locked {
		s.recordLoginFailure(ctx, normalized, "account locked")
		s.incrementLogin("locked")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	user, err := s.verifier.Verify(ctx, rc.TenantID, normalized, params.Password)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeUnauthorized):
			// Only credential failures count toward lockout.
			s.recordFailure(ctx, key)
			s.recordLoginFailure(ctx, normalized, "invalid credentials")
			s.incrementLogin("failed")
		case dErrors.HasCode(err, dErrors.CodeForbidden):
			s.recordLoginFailure(ctx, normalized, "account inactive")
			s.incrementLogin("failed")
		}
		return nil, err
	}

	now := requestcontext.Now(ctx)
	sess := s.newSession(rc, user, now)

	// Credential verification has run; resolve the verified principal onto
	// the scope so the audit entry below and everything downstream
	// attributes to it.
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

	err = s.runner.Run(ctx, func(txCtx context.Context) error {
		// A session left behind by a rolled-back login is never referenced
		// (no tokens were issued) and expires on its own.
		if err := s.sessions.Create(txCtx, sess); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
		}
		if err := s.users.RecordLogin(txCtx, user.TenantID, user.ID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login time")
		}

		entry, err := audit.FromContext(txCtx, audit.ActionLogin, "user", user.ID.String(),
			audit.WithDetail(sess.Device),
		)
		if err != nil {
			return err
		}
		_, err = s.recorder.Record(txCtx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.issueTokens(user, sess.ID)
	if err != nil {
		return nil, err
	}

	s.clearLockout(ctx, key)
	s.incrementLogin("success")
	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"tenant_id", user.TenantID.String(),
		"session_id", sess.ID.String(),
		"device", sess.Device,
	)

	loggedIn := user.Clone()
	loggedIn.LastLoginAt = &now

	return &AuthResult{TokenPair: pair, User: loggedIn, Session: sess}, nil
}

// isLocked consults the lockout store. Lockout is advisory: if the store is
// unreachable the attempt proceeds to credential verification and the error
// is logged loudly.
func (s *Service) isLocked(ctx context.Context, key string) bool {
	if s.lockouts == nil {
		return false
	}
	locked, err := s.lockouts.IsLocked(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "lockout check failed; allowing attempt",
			"error", err,
		)
		return false
	}
	return locked
}

// recordFailure counts one failed credential check. Store errors are logged
// and dropped; lockout bookkeeping never fails the login flow.
func (s *Service) recordFailure(ctx context.Context, key string) {
	if s.lockouts == nil {
		return
	}
	locked, err := s.lockouts.RecordFailure(ctx, key)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record login failure",
			"error", err,
		)
		return
	}
	if locked {
		s.logger.WarnContext(ctx, "account locked after repeated login failures",
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) clearLockout(ctx context.Context, key string) {
	if s.lockouts == nil {
		return
	}
	if err := s.lockouts.Clear(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear lockout counter",
			"error", err,
		)
	}
}

// recordLoginFailure writes the login_failed entry. It runs on a
// cancellation-free context and degrades to the fallback sink: the failed
// attempt is already being rejected, and the record must survive both a
// dropped client connection and a primary store outage.
func (s *Service) recordLoginFailure(ctx context.Context, emailAddr, reason string) {
	ctx = context.WithoutCancel(ctx)

	entry, err := audit.FromContext(ctx, audit.ActionLoginFailed, "user", "",
		audit.WithDetail(fmt.Sprintf("login attempt for %s", emailAddr)),
		audit.WithError(reason),
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build login_failed audit entry",
			"error", err,
		)
		return
	}
	if _, err := s.recorder.RecordDegraded(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to record login_failed entry",
			"error", err,
		)
	}
}
