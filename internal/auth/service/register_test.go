package service

import (
	"context"

	"cradle/internal/identity"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/requestcontext"
)

func (s *AuthServiceSuite) TestRegisterCreatesAccountAndLogsIn() {
	ctx := s.requestCtx("tenant-alpha")

	result, err := s.service.Register(ctx, RegisterParams{
		Email:    "new@example.com",
		FullName: "New Person",
		Password: "long-enough-password",
	})
	s.Require().NoError(err)

	s.NotEmpty(result.AccessToken)
	s.NotEmpty(result.RefreshToken)
	s.Equal([]string{identity.RoleUser}, result.User.Roles)

	stored, err := s.users.FindByEmail(context.Background(), "tenant-alpha", "new@example.com")
	s.Require().NoError(err)
	s.Equal(result.User.ID, stored.ID)
	s.True(stored.Active)

	_, err = s.sessions.FindByID(context.Background(), result.Session.ID)
	s.Require().NoError(err)

	rc, err := requestcontext.Current(ctx)
	s.Require().NoError(err)
	s.Equal(result.User.ID, rc.UserID)
}

func (s *AuthServiceSuite) TestRegisterRecordsSelfActorEntry() {
	ctx := s.requestCtx("tenant-alpha")

	result, err := s.service.Register(ctx, RegisterParams{
		Email:    "new@example.com",
		Password: "long-enough-password",
	})
	s.Require().NoError(err)

	entries := s.recorder.byAction(audit.ActionCreate)
	s.Require().Len(entries, 1)
	entry := entries[0]
	s.Equal(result.User.ID.String(), entry.ActorID)
	s.Equal(result.User.ID.String(), entry.ResourceID)
	s.Equal(result.Session.ID.String(), entry.SessionID)
	s.Equal("self-registration", entry.ActionDetail)
	s.Equal("new@example.com", entry.NewValues["email"])
	s.NotContains(entry.NewValues, "password")
	s.NotContains(entry.NewValues, "password_hash")
}

func (s *AuthServiceSuite) TestRegisterDerivesNameFromEmail() {
	result, err := s.service.Register(s.requestCtx("tenant-alpha"), RegisterParams{
		Email:    "jane.doe@example.com",
		Password: "long-enough-password",
	})
	s.Require().NoError(err)
	s.NotEmpty(result.User.FullName)
}

func (s *AuthServiceSuite) TestRegisterRejectsDuplicateEmail() {
	s.seedUser("tenant-alpha", "taken@example.com")

	_, err := s.service.Register(s.requestCtx("tenant-alpha"), RegisterParams{
		Email:    "taken@example.com",
		Password: "long-enough-password",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "email already registered")
}

func (s *AuthServiceSuite) TestRegisterSameEmailDifferentTenants() {
	_, err := s.service.Register(s.requestCtx("tenant-alpha"), RegisterParams{
		Email:    "shared@example.com",
		Password: "long-enough-password",
	})
	s.Require().NoError(err)

	_, err = s.service.Register(s.requestCtx("tenant-beta"), RegisterParams{
		Email:    "shared@example.com",
		Password: "long-enough-password",
	})
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) TestRegisterRejectsShortPassword() {
	_, err := s.service.Register(s.requestCtx("tenant-alpha"), RegisterParams{
		Email:    "new@example.com",
		Password: "short",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Empty(s.recorder.entries)
}

func (s *AuthServiceSuite) TestRegisterRejectsInvalidEmail() {
	_, err := s.service.Register(s.requestCtx("tenant-alpha"), RegisterParams{
		Email:    "not-an-email",
		Password: "long-enough-password",
	})
	s.Require().Error(err)
	s.Empty(s.recorder.entries)
}

func (s *AuthServiceSuite) TestRegisterFailsClosedWhenAuditWriteFails() {
	s.recorder.recordErr = &audit.PersistenceError{Op: "primary write"}

	_, err := s.service.Register(s.requestCtx("tenant-alpha"), RegisterParams{
		Email:    "new@example.com",
		Password: "long-enough-password",
	})
	s.Require().Error(err)

	var persistErr *audit.PersistenceError
	s.ErrorAs(err, &persistErr)
}
