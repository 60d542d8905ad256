// Package requestscope establishes the ambient request scope from inbound
// HTTP metadata. It must run before any other domain middleware; everything
// downstream reads the scope through pkg/requestcontext.
package requestscope

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	id "cradle/pkg/domain"
	"cradle/pkg/requestcontext"
)

// Headers read and written by the establisher.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTenantID  = "X-Tenant-ID"
)

type options struct {
	defaultTenant id.TenantID
}

// Option configures the establisher.
type Option func(*options)

// WithDefaultTenant overrides the tenant used when no X-Tenant-ID header is
// present. Defaults to id.DefaultTenant.
func WithDefaultTenant(tenant id.TenantID) Option {
	return func(o *options) {
		if !tenant.IsZero() {
			o.defaultTenant = tenant
		}
	}
}

// Establish returns middleware that seeds the request scope: request id
// (inbound header or a fresh UUID), tenant (header, or the default tenant
// when the header is absent), client IP, and user agent. The request id is
// echoed on the response so callers can correlate. A malformed tenant header
// is rejected rather than silently remapped to the default tenant.
func Establish(opts ...Option) func(http.Handler) http.Handler {
	o := options{defaultTenant: id.DefaultTenant}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}

			tenant := o.defaultTenant
			if raw := r.Header.Get(HeaderTenantID); strings.TrimSpace(raw) != "" {
				parsed, err := id.ParseTenantID(raw)
				if err != nil {
					w.Header().Set(HeaderRequestID, requestID)
					writeJSONError(w, http.StatusBadRequest, "invalid_tenant", "X-Tenant-ID header is malformed")
					return
				}
				tenant = parsed
			}

			ctx := requestcontext.Establish(r.Context(), requestcontext.Metadata{
				RequestID: requestID,
				TenantID:  tenant,
				ClientIP:  ClientIPFromRequest(r),
				UserAgent: r.Header.Get("User-Agent"),
			})

			w.Header().Set(HeaderRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// Check X-Forwarded-For header first (standard for proxied requests)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
		// Take the first IP which is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header (used by nginx and other proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr (direct connection)
	// RemoteAddr is in format "ip:port", so we need to strip the port
	if addr := r.RemoteAddr; addr != "" {
		// For IPv6, format is [::1]:port
		// For IPv4, format is 127.0.0.1:port
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errCode + `","error_description":"` + errDesc + `"}`))
}
