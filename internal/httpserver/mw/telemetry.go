package mw

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/utils"
)

const recordTimeout = 2 * time.Second

// APICallRecorder stores one record per routed request.
type APICallRecorder interface {
	RecordAPICall(ctx context.Context, c domain.APICall) error
}

// untracked routes are probes and would drown the usage data
var untracked = map[string]bool{
	"/api/healthz": true,
	"/api/readyz":  true,
}

// Telemetry records an APICall with the chi route pattern and the final status.
// Unmatched requests are not recorded. Recording errors are logged and dropped.
func Telemetry(rec APICallRecorder, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			rctx := chi.RouteContext(r.Context())
			if rctx == nil {
				return
			}
			pattern := rctx.RoutePattern()
			if pattern == "" || untracked[pattern] {
				return
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
			defer cancel()

			err := rec.RecordAPICall(ctx, domain.APICall{
				Endpoint:   pattern,
				Method:     r.Method,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
				UserAgent:  r.UserAgent(),
				IPAddress:  utils.ClientIP(r, trustProxy),
			})
			if err != nil {
				log.Warn("failed to record api call",
					logger.String("endpoint", pattern),
					logger.Error(err))
			}
		})
	}
}
