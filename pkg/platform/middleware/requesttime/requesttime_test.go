package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cradle/pkg/requestcontext"
)

func TestMiddleware_InjectsStableTime(t *testing.T) {
	var first, second time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(5 * time.Millisecond)
		second = requestcontext.Now(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	before := time.Now()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	after := time.Now()

	require.Equal(t, first, second, "time should be stable within a request")
	require.False(t, first.Before(before))
	require.False(t, first.After(after))
}

func TestMiddleware_SeparateRequestsSeparateTimes(t *testing.T) {
	var times []time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, requestcontext.Now(r.Context()))
	}))

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		time.Sleep(2 * time.Millisecond)
	}

	require.Len(t, times, 2)
	require.NotEqual(t, times[0], times[1])
}
