package requestscope

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	id "cradle/pkg/domain"
	"cradle/pkg/requestcontext"
)

// capture runs the establisher around a handler that snapshots the scope.
func capture(t *testing.T, req *http.Request, opts ...Option) (requestcontext.Context, *httptest.ResponseRecorder) {
	t.Helper()

	var rc requestcontext.Context
	var rcErr error
	handler := Establish(opts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, rcErr = requestcontext.Current(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusNoContent {
		require.NoError(t, rcErr)
	}
	return rc, rec
}

func TestEstablish_GeneratesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rc, rec := capture(t, req)

	require.NotEmpty(t, rc.RequestID)
	_, err := uuid.Parse(rc.RequestID)
	require.NoError(t, err, "generated request id should be a UUID")
	require.Equal(t, rc.RequestID, rec.Header().Get(HeaderRequestID), "request id should be echoed")
	require.Equal(t, id.DefaultTenant, rc.TenantID)
}

func TestEstablish_PropagatesInboundHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-abc-123")
	req.Header.Set(HeaderTenantID, "tenant-alpha")
	req.Header.Set("User-Agent", "cradle-test/1.0")

	rc, rec := capture(t, req)

	require.Equal(t, "req-abc-123", rc.RequestID)
	require.Equal(t, "req-abc-123", rec.Header().Get(HeaderRequestID))
	require.Equal(t, id.TenantID("tenant-alpha"), rc.TenantID)
	require.Equal(t, "cradle-test/1.0", rc.UserAgent)
	require.False(t, rc.Resolved())
}

func TestEstablish_RejectsMalformedTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTenantID, "bad tenant!")

	_, rec := capture(t, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_tenant")
	require.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestEstablish_CustomDefaultTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rc, _ := capture(t, req, WithDefaultTenant("acme"))

	require.Equal(t, id.TenantID("acme"), rc.TenantID)
}

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:4567",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-forwarded-for takes first of chain",
			remoteAddr: "10.0.0.1:4567",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2, 10.0.0.3"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip when no forwarded header",
			remoteAddr: "10.0.0.1:4567",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			want:       "198.51.100.7",
		},
		{
			name:       "forwarded header wins over real-ip",
			remoteAddr: "10.0.0.1:4567",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.9",
				"X-Real-IP":       "198.51.100.7",
			},
			want: "203.0.113.9",
		},
		{
			name:       "remote addr with port stripped",
			remoteAddr: "192.0.2.44:51234",
			want:       "192.0.2.44",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[::1]:51234",
			want:       "[::1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestEstablish_ClientIPInScope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4567"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")

	rc, _ := capture(t, req)

	require.Equal(t, "203.0.113.9", rc.ClientIP)
}
