package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiranshivaraju/mdmdedup/internal/api"
	mw "github.com/kiranshivaraju/mdmdedup/internal/api/middleware"
	"github.com/kiranshivaraju/mdmdedup/internal/cache"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// --- stub key lookup ---

type stubKeys struct {
	keys []*models.APIKey
}

func (s *stubKeys) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *stubKeys) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*stubCache)(nil)

// --- router tests ---

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"data":"ok"}`))
}

// keyWith registers a key holding scopes and returns its raw value.
func keyWith(t *testing.T, ks *stubKeys, scopes ...string) string {
	t.Helper()
	raw := mw.KeyPrefix + uuid.NewString()[:12]
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	ks.keys = append(ks.keys, &models.APIKey{ID: uuid.New(), KeyHash: string(hash), KeyPrefix: raw[:8], Scopes: scopes})
	return raw
}

func newTestRouter(ks *stubKeys) http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:             mw.NewAuth(ks),
		RateLimit:        mw.NewRateLimit(&stubCache{}, 60),
		CORSOrigins:      []string{"https://steward.example.com"},
		HealthHandler:    okHandler,
		AnalyzeHandler:   okHandler,
		ListRules:        okHandler,
		CreateKeyHandler: okHandler,
	})
}

func do(h http.Handler, method, path, rawKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if rawKey != "" {
		req.Header.Set("Authorization", "Bearer "+rawKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	w := do(newTestRouter(&stubKeys{}), http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(&stubKeys{})

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/analyze"},
		{http.MethodPost, "/api/v1/analyze/batch"},
		{http.MethodPost, "/api/v1/analyze/smart"},
		{http.MethodGet, "/api/v1/providers/status"},
		{http.MethodPost, "/api/v1/providers/switch"},
		{http.MethodGet, "/api/v1/rules"},
		{http.MethodPost, "/api/v1/rules/test"},
		{http.MethodPost, "/api/v1/admin/keys"},
		{http.MethodGet, "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := do(router, ep.method, ep.path, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_ScopeEnforcement(t *testing.T) {
	ks := &stubKeys{}
	analyzeKey := keyWith(t, ks, mw.ScopeAnalyze)
	rulesKey := keyWith(t, ks, mw.ScopeRules)
	adminKey := keyWith(t, ks, mw.ScopeAdmin)
	router := newTestRouter(ks)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		status int
	}{
		{"analyze with analyze scope", http.MethodPost, "/api/v1/analyze", analyzeKey, http.StatusOK},
		{"analyze with rules scope", http.MethodPost, "/api/v1/analyze", rulesKey, http.StatusForbidden},
		{"rules with rules scope", http.MethodGet, "/api/v1/rules", rulesKey, http.StatusOK},
		{"rules with analyze scope", http.MethodGet, "/api/v1/rules", analyzeKey, http.StatusForbidden},
		{"admin keys with rules scope", http.MethodPost, "/api/v1/admin/keys", rulesKey, http.StatusForbidden},
		{"admin keys with admin scope", http.MethodPost, "/api/v1/admin/keys", adminKey, http.StatusOK},
		{"admin reaches analyze", http.MethodPost, "/api/v1/analyze", adminKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, do(router, tt.method, tt.path, tt.key).Code)
		})
	}
}

func TestRouter_UnwiredEndpointNotImplemented(t *testing.T) {
	ks := &stubKeys{}
	adminKey := keyWith(t, ks, mw.ScopeAdmin)

	w := do(newTestRouter(ks), http.MethodPost, "/api/v1/rules/benchmark", adminKey)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	w := do(newTestRouter(&stubKeys{}), http.MethodGet, "/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	req.Header.Set("Origin", "https://steward.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	newTestRouter(&stubKeys{}).ServeHTTP(w, req)

	assert.Equal(t, "https://steward.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
