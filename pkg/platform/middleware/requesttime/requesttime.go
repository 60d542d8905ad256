// Package requesttime pins one wall-clock reading per HTTP request. Every
// timestamp derived during the request (audit entries, session times, lockout
// windows) reads that instant through requestcontext.Now, so a slow handler
// cannot smear related records across different times.
package requesttime

import (
	"net/http"
	"time"

	"cradle/pkg/requestcontext"
)

// Middleware stores the arrival time in the request context. Install it
// ahead of anything that reads requestcontext.Now.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
