package jwttoken

import (
	authmw "cradle/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims converts service claims to the auth middleware's port type.
func ToMiddlewareClaims(claims *Claims) *authmw.Claims {
	return &authmw.Claims{
		UserID:    claims.UserID,
		TenantID:  claims.TenantID,
		Email:     claims.Email,
		Roles:     claims.Roles,
		SessionID: claims.SessionID,
	}
}

// JWTServiceAdapter adapts JWTService to the auth middleware's
// TokenValidator port.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateAccessToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
