package service

import (
	"context"
	"errors"

	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/sentinel"
)

// Logout revokes the caller's session. Revoking a session that is already
// gone succeeds; the access token still expires on its own schedule, but
// refresh exchanges stop immediately.
//
// The logout entry is recorded on every exit path, including store
// failures: a revocation attempt is security-relevant whether or not it
// succeeded.
func (s *Service) Logout(ctx context.Context) (err error) {
	rc, scopeErr := callerScope(ctx)
	if scopeErr != nil {
		return scopeErr
	}
	if rc.SessionID.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "no active session")
	}

	defer func() {
		ctx := context.WithoutCancel(ctx)
		opts := []audit.Option{}
		if err != nil {
			opts = append(opts, audit.WithError("session revocation failed"))
		}
		entry, entryErr := audit.FromContext(ctx, audit.ActionLogout, "session", rc.SessionID.String(), opts...)
		if entryErr != nil {
			s.logger.ErrorContext(ctx, "failed to build logout audit entry",
				"error", entryErr,
			)
			return
		}
		if _, recErr := s.recorder.RecordDegraded(ctx, entry); recErr != nil {
			s.logger.ErrorContext(ctx, "failed to record logout entry",
				"error", recErr,
			)
		}
	}()

	removed, delErr := s.sessions.Delete(ctx, rc.SessionID)
	if delErr != nil {
		if errors.Is(delErr, sentinel.ErrNotFound) {
			return nil
		}
		err = dErrors.Wrap(delErr, dErrors.CodeInternal, "failed to revoke session")
		return err
	}

	s.logger.InfoContext(ctx, "session revoked",
		"session_id", removed.ID.String(),
		"user_id", rc.UserID.String(),
	)
	return nil
}
