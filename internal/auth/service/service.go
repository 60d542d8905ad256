// Package service implements the authentication flows: login with lockout
// protection, self-registration, token refresh, and logout. Every flow is
// tenant-scoped through the ambient request scope, and every security-
// relevant outcome leaves an audit entry.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cradle/internal/auth/device"
	"cradle/internal/auth/models"
	"cradle/internal/identity"
	jwttoken "cradle/internal/jwt_token"
	"cradle/internal/platform/metrics"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	audit "cradle/pkg/platform/audit"
	"cradle/pkg/platform/tx"
	"cradle/pkg/requestcontext"
)

// UserStore is the slice of identity persistence the auth flows need.
type UserStore interface {
	Create(ctx context.Context, user *identity.User) error
	FindByID(ctx context.Context, tenantID id.TenantID, userID id.UserID) (*identity.User, error)
	RecordLogin(ctx context.Context, tenantID id.TenantID, userID id.UserID, at time.Time) error
}

// CredentialVerifier checks a tenant member's email and password.
type CredentialVerifier interface {
	Verify(ctx context.Context, tenantID id.TenantID, email, password string) (*identity.User, error)
}

// SessionStore persists live sessions. Expired sessions behave exactly like
// missing ones.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Touch(ctx context.Context, sessionID id.SessionID, at time.Time) error
	Delete(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// LockoutStore counts failed logins per tenant-scoped key.
type LockoutStore interface {
	RecordFailure(ctx context.Context, key string) (bool, error)
	IsLocked(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

// TokenIssuer mints and validates signed token pairs.
type TokenIssuer interface {
	GenerateAccessToken(sub jwttoken.Subject, expiresIn time.Duration) (string, error)
	GenerateRefreshToken(sub jwttoken.Subject, expiresIn time.Duration) (string, error)
	ValidateRefreshToken(token string) (*jwttoken.Claims, error)
}

// Recorder persists audit entries. Record is fail-closed and aborts the
// surrounding operation on failure; RecordDegraded diverts to the fallback
// sink instead, for entries that must outlive a failing flow.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) (uuid.UUID, error)
	RecordDegraded(ctx context.Context, entry audit.Entry) (uuid.UUID, error)
}

// Config carries the token and session lifetimes.
type Config struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SessionTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 15 * time.Minute
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
	return c
}

// TokenPair is one issued access/refresh pair. ExpiresIn is the access token
// lifetime in seconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// AuthResult is the outcome of a flow that issues tokens.
type AuthResult struct {
	TokenPair
	User    *identity.User
	Session *models.Session
}

// Service orchestrates the authentication flows.
type Service struct {
	users    UserStore
	verifier CredentialVerifier
	sessions SessionStore
	lockouts LockoutStore
	tokens   TokenIssuer
	devices  *device.Service
	recorder Recorder
	runner   tx.Runner
	cfg      Config
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

// WithTxRunner couples the login-time user stamp and its audit entry into
// one transaction. Memory-backed wiring keeps the default no-op runner.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// WithDeviceService enables device fingerprinting of sessions. Without it
// sessions carry a display name but no fingerprint binding.
func WithDeviceService(d *device.Service) Option {
	return func(s *Service) {
		if d != nil {
			s.devices = d
		}
	}
}

func New(
	users UserStore,
	verifier CredentialVerifier,
	sessions SessionStore,
	lockouts LockoutStore,
	tokens TokenIssuer,
	recorder Recorder,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		users:    users,
		verifier: verifier,
		sessions: sessions,
		lockouts: lockouts,
		tokens:   tokens,
		devices:  device.NewService(false),
		recorder: recorder,
		runner:   tx.NoopRunner{},
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// callerScope resolves the ambient request scope. Auth flows cannot run
// without one: the tenant comes from it and identity resolution writes back
// to it.
func callerScope(ctx context.Context) (requestcontext.Context, error) {
	rc, err := requestcontext.Current(ctx)
	if err != nil {
		return requestcontext.Context{}, dErrors.Wrap(err, dErrors.CodeInternal, "request scope missing")
	}
	if rc.TenantID.IsZero() {
		return requestcontext.Context{}, dErrors.New(dErrors.CodeBadRequest, "tenant is required")
	}
	return rc, nil
}

// issueTokens mints an access/refresh pair from the user's current state, so
// role changes take effect on the next issuance.
func (s *Service) issueTokens(user *identity.User, sessionID id.SessionID) (TokenPair, error) {
	sub := jwttoken.Subject{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Email:     user.Email,
		Roles:     user.Roles,
		SessionID: sessionID,
	}

	access, err := s.tokens.GenerateAccessToken(sub, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access token")
	}
	refresh, err := s.tokens.GenerateRefreshToken(sub, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// newSession builds a session record bound to the caller's device.
func (s *Service) newSession(rc requestcontext.Context, user *identity.User, now time.Time) *models.Session {
	return &models.Session{
		ID:          id.NewSessionID(),
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Device:      device.ParseUserAgent(rc.UserAgent),
		Fingerprint: s.devices.ComputeFingerprint(rc.UserAgent),
		IPAddress:   rc.ClientIP,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionTTL),
		LastSeenAt:  now,
	}
}

func (s *Service) incrementLogin(result string) {
	if s.metrics != nil {
		s.metrics.IncrementLoginAttempt(result)
	}
}
