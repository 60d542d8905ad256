package service

import (
	"context"

	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

func (s *AuthServiceSuite) TestLogoutRevokesSession() {
	result, ctx := s.login("tenant-alpha", "alice@example.com")

	s.Require().NoError(s.service.Logout(ctx))

	_, err := s.sessions.FindByID(context.Background(), result.Session.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	entries := s.recorder.byAction(audit.ActionLogout)
	s.Require().Len(entries, 1)
	entry := entries[0]
	s.Equal(result.User.ID.String(), entry.ActorID)
	s.Equal("session", entry.ResourceType)
	s.Equal(result.Session.ID.String(), entry.ResourceID)
	s.True(entry.Success)
}

func (s *AuthServiceSuite) TestLogoutIsIdempotent() {
	_, ctx := s.login("tenant-alpha", "alice@example.com")

	s.Require().NoError(s.service.Logout(ctx))
	s.Require().NoError(s.service.Logout(ctx))

	// Both revocation attempts are on record.
	s.Len(s.recorder.byAction(audit.ActionLogout), 2)
}

func (s *AuthServiceSuite) TestLogoutWithoutSessionRejected() {
	ctx := s.requestCtx("tenant-alpha")

	err := s.service.Logout(ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AuthServiceSuite) TestLogoutStopsRefresh() {
	result, ctx := s.login("tenant-alpha", "alice@example.com")
	s.Require().NoError(s.service.Logout(ctx))

	_, err := s.service.Refresh(s.requestCtx("tenant-alpha"), result.RefreshToken)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AuthServiceSuite) TestLogoutSurvivesDegradedRecorder() {
	_, ctx := s.login("tenant-alpha", "alice@example.com")
	s.recorder.degradedErr = &audit.PersistenceError{Op: "primary write"}

	s.Require().NoError(s.service.Logout(ctx), "a failed audit write is logged, not surfaced to the caller")
}

func (s *AuthServiceSuite) TestLogoutResolvedScopeKeepsSessionAttribution() {
	result, _ := s.login("tenant-alpha", "alice@example.com")

	// A later request in the same session: the middleware re-establishes the
	// scope and resolves the identity from the access token.
	ctx := s.requestCtx("tenant-alpha")
	s.Require().NoError(requestcontext.ResolveIdentity(ctx, requestcontext.Identity{
		UserID:    result.User.ID,
		Email:     result.User.Email,
		Roles:     result.User.Roles,
		TenantID:  result.User.TenantID,
		SessionID: result.Session.ID,
	}))

	s.Require().NoError(s.service.Logout(ctx))

	entries := s.recorder.byAction(audit.ActionLogout)
	s.Require().Len(entries, 1)
	s.Equal(result.Session.ID.String(), entries[0].SessionID)
}
