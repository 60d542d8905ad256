// Package httptransport is the HTTP edge of the service. It owns the router,
// the shared middleware chain, and the handlers that translate between JSON
// requests and the domain services.
package httptransport

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cradle/internal/platform/metrics"
	"cradle/internal/platform/redis"
	"cradle/internal/transport/http/shared"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/platform/middleware/logging"
	"cradle/pkg/platform/middleware/requestscope"
	"cradle/pkg/platform/middleware/requesttime"
	"cradle/pkg/requestcontext"
)

// Registrar mounts a handler's routes on the shared router. Each handler
// wires its own auth middleware; the router only provides the ambient chain.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the cross-cutting dependencies of the HTTP edge.
// DB and Redis are nil when the corresponding backend is not configured;
// readiness then skips them.
type RouterConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	DB      *sql.DB
	Redis   *redis.Client
	Timeout time.Duration
}

// NewRouter builds the full HTTP surface: liveness, readiness and metrics
// probes outside the request-scope chain, and every registered handler
// inside it. Probes stay outside so a scope bug can never take them down,
// and so they do not pollute access logs and request metrics.
func NewRouter(cfg RouterConfig, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(cfg))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Group(func(api chi.Router) {
		api.Use(requesttime.Middleware)
		api.Use(requestscope.Establish())
		api.Use(logging.AccessLog(cfg.Logger, cfg.Metrics))
		api.Use(chimiddleware.Timeout(timeout))

		for _, h := range handlers {
			h.Register(api)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "endpoint not found"))
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyzResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReadyz pings the configured backends with a short deadline. Check
// failures are logged server-side; the response only says which dependency
// is unavailable.
func handleReadyz(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := readyzResponse{
			Status: "ok",
			Checks: map[string]string{},
		}

		if cfg.DB != nil {
			if err := cfg.DB.PingContext(ctx); err != nil {
				cfg.Logger.ErrorContext(ctx, "readiness: database ping failed", "error", err.Error())
				resp.Status = "degraded"
				resp.Checks["database"] = "unavailable"
			} else {
				resp.Checks["database"] = "ok"
			}
		}

		if cfg.Redis != nil {
			if err := cfg.Redis.Health(ctx); err != nil {
				cfg.Logger.ErrorContext(ctx, "readiness: redis ping failed", "error", err.Error())
				resp.Status = "degraded"
				resp.Checks["redis"] = "unavailable"
			} else {
				resp.Checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		shared.WriteJSON(w, status, resp)
	}
}

// writeServiceError translates a service error into an HTTP response.
// Internal errors are logged with their cause and re-issued with a generic
// message so backend details never reach clients; everything else carries a
// message the service chose for the caller and passes through unchanged.
func writeServiceError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, msg))
		return
	}
	logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	shared.WriteError(w, err)
}
