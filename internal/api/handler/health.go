package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 3 * time.Second

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Any failing dependency turns the response into a 503.
func NewHealthHandler(deps map[string]Pinger, version string) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := "ok"
		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				checks[name] = "error: " + err.Error()
				status = "degraded"
				continue
			}
			checks[name] = "ok"
		}

		body := map[string]any{"status": status, "version": version, "checks": checks}
		if status != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY", "One or more dependencies are unavailable", body)
			return
		}
		response.JSON(w, body)
	}
}
