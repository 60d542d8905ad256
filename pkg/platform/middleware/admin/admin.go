// Package admin gates routes on a role carried by the resolved identity.
package admin

import (
	"fmt"
	"log/slog"
	"net/http"

	"cradle/pkg/requestcontext"
)

// RequireRole returns middleware that rejects requests whose resolved
// identity does not carry the role. Requests without a resolved identity
// get 401; resolved identities missing the role get 403.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rc, err := requestcontext.Current(ctx)
			if err != nil || !rc.Resolved() {
				logger.WarnContext(ctx, "role gate without resolved identity",
					"role", role,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			if !rc.HasRole(role) {
				logger.WarnContext(ctx, "role gate denied",
					"role", role,
					"user_id", rc.UserID.String(),
					"request_id", rc.RequestID,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("Role %s required", role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}
