package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool            `json:"ok"`
	Documents  map[string]bool `json:"documents,omitempty"`
	Skills     *int            `json:"skills,omitempty"`
	LastReload string          `json:"last_reload,omitempty"`
	State      string          `json:"state,omitempty"`
	Impact     string          `json:"impact,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type infraResponse struct {
	Mode          string                     `json:"mode"`
	Version       string                     `json:"version,omitempty"`
	Commit        string                     `json:"commit,omitempty"`
	BuildDate     string                     `json:"build_date,omitempty"`
	GoVersion     string                     `json:"go_version,omitempty"`
	UptimeSeconds float64                    `json:"uptime_seconds"`
	Components    map[string]componentStatus `json:"components"`
}

// Infra reports the state of every collaborator.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"content": checkContent(d),
			"redis":   checkRedis(r.Context(), d),
			"llm":     checkLLM(d),
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, d, http.StatusOK, infraResponse{
			Mode:          determineMode(components),
			Version:       d.Version,
			Commit:        d.Commit,
			BuildDate:     d.BuildDate,
			GoVersion:     d.GoVersion,
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
			Components:    components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	// Redis holds every endorsement and conversation
	if redis, ok := components["redis"]; ok && !redis.OK {
		return "critical"
	}
	for _, c := range components {
		if !c.OK {
			return "degraded"
		}
	}
	return "operational"
}

func checkContent(d deps.Deps) componentStatus {
	st := d.Content.Status()

	ok := st.Context
	for _, loaded := range st.Documents {
		ok = ok && loaded
	}

	lastReload := "never"
	if !st.LastReload.IsZero() {
		lastReload = st.LastReload.Format("2006-01-02 15:04:05")
	}

	cs := componentStatus{
		OK:         ok,
		Documents:  st.Documents,
		Skills:     &st.Skills,
		LastReload: lastReload,
	}
	if !st.Context {
		cs.Impact = "chat-disabled"
	}
	return cs
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Activity.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Impact: "endorsements-and-metrics-unavailable",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true}
}

func checkLLM(d deps.Deps) componentStatus {
	if d.LLMState == nil {
		return componentStatus{OK: true, State: "unknown"}
	}
	state := d.LLMState()
	cs := componentStatus{OK: state != "open", State: state}
	if !cs.OK {
		cs.Impact = "chat-unavailable"
	}
	return cs
}
