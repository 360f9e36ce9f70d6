package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	mw "github.com/kiranshivaraju/mdmdedup/internal/api/middleware"
	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth        *mw.Auth
	RateLimit   *mw.RateLimit
	CORSOrigins []string

	HealthHandler http.HandlerFunc

	AnalyzeHandler      http.HandlerFunc
	AnalyzeBatchHandler http.HandlerFunc
	AnalyzeSmartHandler http.HandlerFunc

	ProviderStatusHandler http.HandlerFunc
	SwitchProviderHandler http.HandlerFunc
	HealthCheckHandler    http.HandlerFunc

	ListRules       http.HandlerFunc
	CreateRule      http.HandlerFunc
	GetRule         http.HandlerFunc
	TestRule        http.HandlerFunc
	ValidateRule    http.HandlerFunc
	BenchmarkRule   http.HandlerFunc
	GenerateTests   http.HandlerFunc
	ListTestResults http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Tracing)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAnalyze))

			r.Post("/analyze", orNotImplemented(deps.AnalyzeHandler))
			r.Post("/analyze/batch", orNotImplemented(deps.AnalyzeBatchHandler))
			r.Post("/analyze/smart", orNotImplemented(deps.AnalyzeSmartHandler))
			r.Get("/providers/status", orNotImplemented(deps.ProviderStatusHandler))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeRules))

			r.Get("/rules", orNotImplemented(deps.ListRules))
			r.Post("/rules", orNotImplemented(deps.CreateRule))
			r.Get("/rules/{ruleID}", orNotImplemented(deps.GetRule))
			r.Get("/rules/{ruleID}/test-results", orNotImplemented(deps.ListTestResults))
			r.Post("/rules/test", orNotImplemented(deps.TestRule))
			r.Post("/rules/validate", orNotImplemented(deps.ValidateRule))
			r.Post("/rules/benchmark", orNotImplemented(deps.BenchmarkRule))
			r.Post("/rules/generate-tests", orNotImplemented(deps.GenerateTests))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/providers/switch", orNotImplemented(deps.SwitchProviderHandler))
			r.Post("/providers/health-check", orNotImplemented(deps.HealthCheckHandler))

			r.Post("/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
