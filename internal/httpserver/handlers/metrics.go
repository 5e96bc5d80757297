package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
)

// Metrics serves the Prometheus exposition. The exporter refreshes its
// gauges from the store on every scrape.
func Metrics(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Metrics.ServeHTTP(w, r)
	}
}
