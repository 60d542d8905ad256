package service

import (
	"context"
	"time"

	jwttoken "cradle/internal/jwt_token"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/requestcontext"
)

func (s *AuthServiceSuite) TestRefreshRotatesBothTokens() {
	original, _ := s.login("tenant-alpha", "alice@example.com")

	result, err := s.service.Refresh(s.requestCtx("tenant-alpha"), original.RefreshToken)
	s.Require().NoError(err)

	s.NotEmpty(result.AccessToken)
	s.NotEmpty(result.RefreshToken)
	s.NotEqual(original.AccessToken, result.AccessToken)
	s.NotEqual(original.RefreshToken, result.RefreshToken)

	claims, err := s.jwt.ValidateAccessToken(result.AccessToken)
	s.Require().NoError(err)
	s.Equal(original.User.ID.String(), claims.UserID)
	s.Equal(original.Session.ID.String(), claims.SessionID, "rotation keeps the session")
}

func (s *AuthServiceSuite) TestRefreshIsNotAudited() {
	original, _ := s.login("tenant-alpha", "alice@example.com")
	recorded := len(s.recorder.entries)

	_, err := s.service.Refresh(s.requestCtx("tenant-alpha"), original.RefreshToken)
	s.Require().NoError(err)
	s.Len(s.recorder.entries, recorded)
}

func (s *AuthServiceSuite) TestRefreshStampsSessionActivity() {
	original, _ := s.login("tenant-alpha", "alice@example.com")

	later := original.Session.LastSeenAt.Add(10 * time.Minute)
	ctx := requestcontext.WithTime(s.requestCtx("tenant-alpha"), later)

	_, err := s.service.Refresh(ctx, original.RefreshToken)
	s.Require().NoError(err)

	sess, err := s.sessions.FindByID(context.Background(), original.Session.ID)
	s.Require().NoError(err)
	s.True(sess.LastSeenAt.Equal(later))
}

func (s *AuthServiceSuite) TestRefreshResolvesIdentityOnScope() {
	original, _ := s.login("tenant-alpha", "alice@example.com")

	ctx := s.requestCtx("tenant-alpha")
	_, err := s.service.Refresh(ctx, original.RefreshToken)
	s.Require().NoError(err)

	rc, err := requestcontext.Current(ctx)
	s.Require().NoError(err)
	s.Equal(original.User.ID, rc.UserID)
	s.Equal(original.Session.ID, rc.SessionID)
}

func (s *AuthServiceSuite) TestRefreshPicksUpRoleChanges() {
	original, _ := s.login("tenant-alpha", "alice@example.com")

	promoted := original.User.Clone()
	promoted.Roles = []string{"admin", "user"}
	s.Require().NoError(s.users.Update(context.Background(), promoted))

	result, err := s.service.Refresh(s.requestCtx("tenant-alpha"), original.RefreshToken)
	s.Require().NoError(err)

	claims, err := s.jwt.ValidateAccessToken(result.AccessToken)
	s.Require().NoError(err)
	s.Contains(claims.Roles, "admin")
}

func (s *AuthServiceSuite) TestRefreshRejectsAccessToken() {
	original, _ := s.login("tenant-alpha", "alice@example.com")

	_, err := s.service.Refresh(s.requestCtx("tenant-alpha"), original.AccessToken)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "invalid refresh token")
}

func (s *AuthServiceSuite) TestRefreshRejectsGarbage() {
	_, err := s.service.Refresh(s.requestCtx("tenant-alpha"), "not-a-token")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "invalid refresh token")
}

func (s *AuthServiceSuite) TestRefreshRejectsRevokedSession() {
	original, loginCtx := s.login("tenant-alpha", "alice@example.com")
	s.Require().NoError(s.service.Logout(loginCtx))

	_, err := s.service.Refresh(s.requestCtx("tenant-alpha"), original.RefreshToken)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "session expired or revoked")
}

func (s *AuthServiceSuite) TestRefreshRejectsDeactivatedUser() {
	original, _ := s.login("tenant-alpha", "alice@example.com")
	s.Require().NoError(s.users.Deactivate(context.Background(), "tenant-alpha", original.User.ID, time.Now().UTC()))

	_, err := s.service.Refresh(s.requestCtx("tenant-alpha"), original.RefreshToken)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Contains(err.Error(), "user not found or inactive")
}

func (s *AuthServiceSuite) TestRefreshRejectsUnknownUser() {
	// A well-formed token whose subject never existed.
	token, err := s.jwt.GenerateRefreshToken(jwttoken.Subject{
		UserID:    id.NewUserID(),
		TenantID:  "tenant-alpha",
		Email:     "ghost@example.com",
		SessionID: id.NewSessionID(),
	}, time.Hour)
	s.Require().NoError(err)

	_, refreshErr := s.service.Refresh(s.requestCtx("tenant-alpha"), token)
	s.Require().Error(refreshErr)
	s.True(dErrors.HasCode(refreshErr, dErrors.CodeUnauthorized))
	s.Contains(refreshErr.Error(), "user not found or inactive")
}

func (s *AuthServiceSuite) TestRefreshUsesTokenTenant() {
	original, _ := s.login("tenant-alpha", "alice@example.com")

	// The verified tenant inside the token is authoritative; the header
	// tenant on the refresh request is not trusted for the lookup.
	_, err := s.service.Refresh(s.requestCtx("tenant-beta"), original.RefreshToken)
	s.Require().NoError(err)
}
