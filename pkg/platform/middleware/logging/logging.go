// Package logging emits one structured access log line per request and
// feeds the HTTP metrics.
package logging

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"cradle/pkg/requestcontext"
)

// RequestObserver records served requests. Satisfied by the platform
// metrics type; nil disables metrics.
type RequestObserver interface {
	ObserveRequest(method, route, status string, d time.Duration)
}

// AccessLog returns middleware that logs one line per request with
// request-scoped attributes. The line is written after the handler returns,
// so identity resolved mid-request shows up even though this middleware
// wraps the resolver. Route patterns, not raw paths, feed the metrics so
// label cardinality stays bounded.
func AccessLog(logger *slog.Logger, obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			if obs != nil {
				obs.ObserveRequest(r.Method, route, strconv.Itoa(status), elapsed)
			}

			rc, _ := requestcontext.CurrentOptional(r.Context())
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", rc.RequestID,
				"tenant_id", rc.TenantID.String(),
				"client_ip", rc.ClientIP,
			}
			if rc.Resolved() && !rc.UserID.IsZero() {
				attrs = append(attrs, "user_id", rc.UserID.String())
			}
			logger.InfoContext(r.Context(), "http request", attrs...)
		})
	}
}
