package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// ProviderRegistry is the registry surface exposed over HTTP.
type ProviderRegistry interface {
	Status() models.ProviderStatus
	Switch(name string) bool
	RunHealthChecks(ctx context.Context, timeout time.Duration)
}

// NewProviderStatusHandler returns an http.HandlerFunc for GET /api/v1/providers/status.
func NewProviderStatusHandler(reg ProviderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, reg.Status())
	}
}

// NewSwitchProviderHandler returns an http.HandlerFunc for POST /api/v1/providers/switch.
func NewSwitchProviderHandler(reg ProviderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := response.Decode(w, r, &body); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			response.BadRequest(w, "name is required")
			return
		}
		if !reg.Switch(name) {
			response.Error(w, http.StatusConflict, "PROVIDER_UNAVAILABLE",
				"Provider is unknown or unhealthy", map[string]string{"name": name})
			return
		}
		response.JSON(w, reg.Status())
	}
}

// NewHealthCheckHandler returns an http.HandlerFunc for POST /api/v1/providers/health-check.
// It probes every provider before answering with the refreshed status.
func NewHealthCheckHandler(reg ProviderRegistry, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg.RunHealthChecks(r.Context(), timeout)
		response.JSON(w, reg.Status())
	}
}
