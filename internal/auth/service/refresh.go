package service

import (
	"context"
	"errors"

	"cradle/internal/auth/device"
	"cradle/internal/auth/models"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/platform/sentinel"
	"cradle/pkg/requestcontext"
)

// Refresh exchanges a valid refresh token for a new token pair. Both tokens
// rotate; the old refresh token dies with its expiry.
//
// The exchange requires the user to still exist and be active and the
// session to still be live, so deactivation and logout invalidate
// outstanding refresh tokens at the next exchange. Every validation failure
// answers with the same unauthorized message. Routine rotation is not
// audited; device fingerprint drift is logged for review.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	rc, err := callerScope(ctx)
	if err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	sessionID, err := id.ParseSessionID(claims.SessionID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}
	tenantID := id.TenantID(claims.TenantID)

	user, err := s.users.FindByID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "user not found or inactive")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !user.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "user not found or inactive")
	}

	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired or revoked")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}

	s.checkDeviceDrift(ctx, rc, sess)

	now := requestcontext.Now(ctx)
	if err := s.sessions.Touch(ctx, sessionID, now); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to stamp session activity",
			"session_id", sessionID.String(),
			"error", err,
		)
	}

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

	// Tokens are minted from the user's current state, not the old claims,
	// so role changes propagate at rotation.
	pair, err := s.issueTokens(user, sess.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{TokenPair: pair, User: user, Session: sess}, nil
}

// checkDeviceDrift compares the caller's device fingerprint against the one
// the session was created with. Drift surfaces in the log for review; it
// does not fail the exchange, since browsers change fingerprints on major
// upgrades.
func (s *Service) checkDeviceDrift(ctx context.Context, rc requestcontext.Context, sess *models.Session) {
	current := s.devices.ComputeFingerprint(rc.UserAgent)
	if _, drift := s.devices.CompareFingerprints(current, sess.Fingerprint); drift {
		s.logger.WarnContext(ctx, "device fingerprint drift on token refresh",
			"session_id", sess.ID.String(),
			"user_id", sess.UserID.String(),
			"session_device", sess.Device,
			"current_device", device.ParseUserAgent(rc.UserAgent),
		)
	}
}
