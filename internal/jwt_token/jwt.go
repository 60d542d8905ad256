package jwttoken

import (
	"errors"
	"time"

	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim. Access tokens authenticate
// API requests; refresh tokens may only be exchanged for new token pairs.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims represents the JWT claims for our tokens.
type Claims struct {
	UserID    string   `json:"user_id"`
	TenantID  string   `json:"tenant_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Subject is the principal a token is minted for.
type Subject struct {
	UserID    id.UserID
	TenantID  id.TenantID
	Email     string
	Roles     []string
	SessionID id.SessionID
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken mints a short-lived token for API authentication.
func (s *JWTService) GenerateAccessToken(sub Subject, expiresIn time.Duration) (string, error) {
	return s.generate(sub, TokenTypeAccess, expiresIn)
}

// GenerateRefreshToken mints a long-lived token for token rotation.
func (s *JWTService) GenerateRefreshToken(sub Subject, expiresIn time.Duration) (string, error) {
	return s.generate(sub, TokenTypeRefresh, expiresIn)
}

func (s *JWTService) generate(sub Subject, tokenType string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    sub.UserID.String(),
		TenantID:  sub.TenantID.String(),
		Email:     sub.Email,
		Roles:     sub.Roles,
		SessionID: sub.SessionID.String(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateAccessToken validates signature, expiry, issuer, audience and
// token type for an access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken validates signature, expiry, issuer, audience and
// token type for a refresh token.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, TokenTypeRefresh)
}

func (s *JWTService) validate(tokenString string, tokenType string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	if claims.TokenType != tokenType {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "wrong token type")
	}

	return claims, nil
}
