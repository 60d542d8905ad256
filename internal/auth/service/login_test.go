package service

import (
	"context"

	"cradle/internal/identity"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/requestcontext"
)

func (s *AuthServiceSuite) TestLoginIssuesSessionAndTokens() {
	user := s.seedUser("tenant-alpha", "alice@example.com")
	ctx := s.requestCtx("tenant-alpha")

	result, err := s.service.Login(ctx, LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().NoError(err)

	s.NotEmpty(result.AccessToken)
	s.NotEmpty(result.RefreshToken)
	s.EqualValues(900, result.ExpiresIn)
	s.NotNil(result.User.LastLoginAt)
	s.Contains(result.Session.Device, "Firefox")
	s.NotEmpty(result.Session.Fingerprint)
	s.Equal("203.0.113.7", result.Session.IPAddress)

	claims, err := s.jwt.ValidateAccessToken(result.AccessToken)
	s.Require().NoError(err)
	s.Equal(user.ID.String(), claims.UserID)
	s.Equal("tenant-alpha", claims.TenantID)
	s.Equal(result.Session.ID.String(), claims.SessionID)

	stored, err := s.sessions.FindByID(context.Background(), result.Session.ID)
	s.Require().NoError(err)
	s.Equal(user.ID, stored.UserID)

	stamped, err := s.users.FindByID(context.Background(), "tenant-alpha", user.ID)
	s.Require().NoError(err)
	s.NotNil(stamped.LastLoginAt)
}

func (s *AuthServiceSuite) TestLoginResolvesIdentityOnScope() {
	result, ctx := s.login("tenant-alpha", "alice@example.com")

	rc, err := requestcontext.Current(ctx)
	s.Require().NoError(err)
	s.True(rc.Resolved())
	s.Equal(result.User.ID, rc.UserID)
	s.Equal(result.Session.ID, rc.SessionID)
}

func (s *AuthServiceSuite) TestLoginRecordsEntryWithSession() {
	result, _ := s.login("tenant-alpha", "alice@example.com")

	entries := s.recorder.byAction(audit.ActionLogin)
	s.Require().Len(entries, 1)
	entry := entries[0]
	s.Equal(result.User.ID.String(), entry.ActorID)
	s.Equal(id.TenantID("tenant-alpha"), entry.TenantID)
	s.Equal("user", entry.ResourceType)
	s.Equal(result.User.ID.String(), entry.ResourceID)
	s.Equal(result.Session.ID.String(), entry.SessionID)
	s.Equal(result.Session.Device, entry.ActionDetail)
	s.True(entry.Success)
}

func (s *AuthServiceSuite) TestLoginNormalizesEmail() {
	s.seedUser("tenant-alpha", "alice@example.com")
	ctx := s.requestCtx("tenant-alpha")

	_, err := s.service.Login(ctx, LoginParams{Email: "  ALICE@Example.com ", Password: testPassword})
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) TestLoginWrongPasswordIsGenericAndAudited() {
	s.seedUser("tenant-alpha", "alice@example.com")
	ctx := s.requestCtx("tenant-alpha")

	_, err := s.service.Login(ctx, LoginParams{Email: "alice@example.com", Password: "not-the-password"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "invalid email or password")

	entries := s.recorder.byAction(audit.ActionLoginFailed)
	s.Require().Len(entries, 1)
	entry := entries[0]
	s.Equal(audit.AnonymousActor, entry.ActorID)
	s.False(entry.Success)
	s.Equal("invalid credentials", entry.ErrorMessage)
	s.Contains(entry.ActionDetail, "alice@example.com")
}

func (s *AuthServiceSuite) TestLoginUnknownEmailIndistinguishable() {
	s.seedUser("tenant-alpha", "alice@example.com")
	ctx := s.requestCtx("tenant-alpha")

	_, wrongPassword := s.service.Login(ctx, LoginParams{Email: "alice@example.com", Password: "not-the-password"})
	_, unknownEmail := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "nobody@example.com", Password: testPassword})

	s.Require().Error(wrongPassword)
	s.Require().Error(unknownEmail)
	s.Equal(wrongPassword.Error(), unknownEmail.Error())
	s.Len(s.recorder.byAction(audit.ActionLoginFailed), 2)
}

func (s *AuthServiceSuite) TestLoginCrossTenantMisses() {
	s.seedUser("tenant-alpha", "alice@example.com")
	ctx := s.requestCtx("tenant-beta")

	_, err := s.service.Login(ctx, LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	entries := s.recorder.byAction(audit.ActionLoginFailed)
	s.Require().Len(entries, 1)
	s.Equal(id.TenantID("tenant-beta"), entries[0].TenantID)
}

func (s *AuthServiceSuite) TestLoginInactiveAccount() {
	user := s.seedUser("tenant-alpha", "alice@example.com")
	s.Require().NoError(s.users.Deactivate(context.Background(), "tenant-alpha", user.ID, user.CreatedAt))

	_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	entries := s.recorder.byAction(audit.ActionLoginFailed)
	s.Require().Len(entries, 1)
	s.Equal("account inactive", entries[0].ErrorMessage)

	// Inactive-account attempts carry a correct password and never count
	// toward lockout.
	locked, lockErr := s.lockouts.IsLocked(context.Background(), "tenant-alpha|alice@example.com")
	s.Require().NoError(lockErr)
	s.False(locked)
}

func (s *AuthServiceSuite) TestLockoutAfterRepeatedFailures() {
	s.seedUser("tenant-alpha", "alice@example.com")

	for range 3 {
		_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: "not-the-password"})
		s.Require().Error(err)
	}

	// Even the correct password is rejected while locked, with the same
	// generic message.
	_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "invalid email or password")

	entries := s.recorder.byAction(audit.ActionLoginFailed)
	s.Require().Len(entries, 4)
	s.Equal("account locked", entries[3].ErrorMessage)
}

func (s *AuthServiceSuite) TestLockoutClearsOnSuccessfulLogin() {
	s.seedUser("tenant-alpha", "alice@example.com")

	for range 2 {
		_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: "not-the-password"})
		s.Require().Error(err)
	}
	_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().NoError(err)

	// The counter restarted: two more failures stay below the threshold.
	for range 2 {
		_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: "not-the-password"})
		s.Require().Error(err)
	}
	locked, lockErr := s.lockouts.IsLocked(context.Background(), "tenant-alpha|alice@example.com")
	s.Require().NoError(lockErr)
	s.False(locked)
}

func (s *AuthServiceSuite) TestLoginFailsClosedWhenAuditWriteFails() {
	s.seedUser("tenant-alpha", "alice@example.com")
	s.recorder.recordErr = &audit.PersistenceError{Op: "primary write"}

	_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().Error(err)

	var persistErr *audit.PersistenceError
	s.ErrorAs(err, &persistErr)
}

func (s *AuthServiceSuite) TestLoginFailureSurvivesDegradedRecorder() {
	s.seedUser("tenant-alpha", "alice@example.com")
	s.recorder.degradedErr = &audit.PersistenceError{Op: "primary write"}

	_, err := s.service.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: "not-the-password"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "the caller still sees the credential failure, not the audit failure")
}

func (s *AuthServiceSuite) TestLoginWithoutScopeIsWiringBug() {
	_, err := s.service.Login(context.Background(), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *AuthServiceSuite) TestLoginWithoutLockoutStore() {
	s.seedUser("tenant-alpha", "alice@example.com")
	svc := New(s.users, identity.NewVerifier(s.users), s.sessions, nil, s.jwt, s.recorder, Config{})

	_, err := svc.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: "not-the-password"})
	s.Require().Error(err)

	_, err = svc.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().NoError(err)
}

func (s *AuthServiceSuite) TestLoginWithoutDeviceServiceLeavesNoFingerprint() {
	s.seedUser("tenant-alpha", "alice@example.com")
	svc := New(s.users, identity.NewVerifier(s.users), s.sessions, s.lockouts, s.jwt, s.recorder, Config{})

	result, err := svc.Login(s.requestCtx("tenant-alpha"), LoginParams{Email: "alice@example.com", Password: testPassword})
	s.Require().NoError(err)
	s.Empty(result.Session.Fingerprint)
	s.Contains(result.Session.Device, "Firefox")
}
