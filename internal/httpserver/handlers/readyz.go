package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
)

const readyTimeout = 2 * time.Second

// Readyz reports readiness: the document store must answer a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status, body := http.StatusOK, "READY"
		if err := d.Activity.Ping(ctx); err != nil {
			d.Logger.Warn("readiness check failed", logger.Error(err))
			status, body = http.StatusInternalServerError, "NOT READY"
		}

		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
