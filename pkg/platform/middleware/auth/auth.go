// Package auth resolves the verified principal onto the ambient request
// scope from a bearer token. Routes that never use this middleware simply
// stay unresolved; downstream code reads the principal through
// pkg/requestcontext, not through dedicated context keys.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "cradle/pkg/domain"
	"cradle/pkg/requestcontext"
)

// Claims is the verified principal extracted from a bearer token.
type Claims struct {
	UserID    string
	TenantID  string
	Email     string
	Roles     []string
	SessionID string
}

// TokenValidator validates an access token string and returns its claims.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// RequireAuth returns middleware that validates the bearer token and
// resolves the identity onto the request scope, exactly once per request.
// Resolution mutates the scope in place, so observers installed earlier in
// the chain see the resolved user without re-wrapping the request.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ident, err := identityFromClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if err := requestcontext.ResolveIdentity(ctx, ident); err != nil {
				// Missing scope or double resolution is a wiring bug, not a
				// client error.
				logger.ErrorContext(ctx, "identity resolution failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve identity")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func identityFromClaims(claims *Claims) (requestcontext.Identity, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return requestcontext.Identity{}, fmt.Errorf("user id claim: %w", err)
	}

	ident := requestcontext.Identity{
		UserID: userID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}

	if claims.TenantID != "" {
		tenant, err := id.ParseTenantID(claims.TenantID)
		if err != nil {
			return requestcontext.Identity{}, fmt.Errorf("tenant claim: %w", err)
		}
		ident.TenantID = tenant
	}

	if claims.SessionID != "" {
		session, err := id.ParseSessionID(claims.SessionID)
		if err != nil {
			return requestcontext.Identity{}, fmt.Errorf("session claim: %w", err)
		}
		ident.SessionID = session
	}

	return ident, nil
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}
