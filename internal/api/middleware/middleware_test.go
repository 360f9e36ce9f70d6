package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/kiranshivaraju/mdmdedup/internal/api/middleware"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// --- Mock key store ---

type mockKeys struct {
	mu      sync.Mutex
	keys    []*models.APIKey
	err     error
	touched chan uuid.UUID
}

func (m *mockKeys) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return m.keys, m.err
}

func (m *mockKeys) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touched != nil {
		m.touched <- id
	}
	return nil
}

// --- Mock Counter ---

type mockCounter struct {
	counter int64
	lastKey string
	err     error
}

func (m *mockCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counter++
	m.lastKey = key
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func hashKey(t *testing.T, rawKey string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func bearer(rawKey string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	return req
}

// --- Auth ---

func TestAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keys   *mockKeys
		status int
	}{
		{"missing header", "", &mockKeys{}, http.StatusUnauthorized},
		{"basic scheme", "Basic abc123", &mockKeys{}, http.StatusUnauthorized},
		{"too short", "Bearer short", &mockKeys{}, http.StatusUnauthorized},
		{"unknown key", "Bearer md_test1234567890", &mockKeys{keys: []*models.APIKey{}}, http.StatusUnauthorized},
		{"lookup error", "Bearer md_test1234567890", &mockKeys{err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := mw.NewAuth(tt.keys).Authenticate(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuth_RevokedKeyRejected(t *testing.T) {
	rawKey := "md_test1234567890abcdef"
	revokedAt := time.Now()
	ms := &mockKeys{keys: []*models.APIKey{{
		ID: uuid.New(), KeyHash: hashKey(t, rawKey), KeyPrefix: rawKey[:8], DeletedAt: &revokedAt,
	}}}
	w := httptest.NewRecorder()
	mw.NewAuth(ms).Authenticate(okHandler()).ServeHTTP(w, bearer(rawKey))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_WrongKey(t *testing.T) {
	rawKey := "md_test1234567890abcdef"
	ms := &mockKeys{keys: []*models.APIKey{{
		ID:        uuid.New(),
		KeyHash:   hashKey(t, "different_key_entirely"),
		KeyPrefix: rawKey[:8],
	}}}
	w := httptest.NewRecorder()
	mw.NewAuth(ms).Authenticate(okHandler()).ServeHTTP(w, bearer(rawKey))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
}

func TestAuth_ValidKey(t *testing.T) {
	rawKey := "md_test1234567890abcdef"
	keyID := uuid.New()
	ms := &mockKeys{
		keys: []*models.APIKey{{
			ID:        keyID,
			KeyHash:   hashKey(t, rawKey),
			KeyPrefix: rawKey[:8],
			Scopes:    []string{mw.ScopeAnalyze},
		}},
		touched: make(chan uuid.UUID, 1),
	}

	var gotID uuid.UUID
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = mw.GetAPIKeyID(r)
		w.WriteHeader(http.StatusOK)
	})
	w := httptest.NewRecorder()
	mw.NewAuth(ms).Authenticate(inner).ServeHTTP(w, bearer(rawKey))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, keyID, gotID)
	select {
	case id := <-ms.touched:
		assert.Equal(t, keyID, id)
	case <-time.After(time.Second):
		t.Fatal("last used was not updated")
	}
}

func TestAuth_RequireScope(t *testing.T) {
	tests := []struct {
		name   string
		scopes []string
		status int
	}{
		{"exact scope", []string{mw.ScopeRules}, http.StatusOK},
		{"admin grants all", []string{mw.ScopeAdmin}, http.StatusOK},
		{"missing scope", []string{mw.ScopeAnalyze}, http.StatusForbidden},
		{"no scopes", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rawKey := "md_scope_1234567890abcdef"
			ms := &mockKeys{keys: []*models.APIKey{{
				ID: uuid.New(), KeyHash: hashKey(t, rawKey), KeyPrefix: rawKey[:8], Scopes: tt.scopes,
			}}}
			auth := mw.NewAuth(ms)
			w := httptest.NewRecorder()
			auth.Authenticate(auth.RequireScope(mw.ScopeRules)(okHandler())).ServeHTTP(w, bearer(rawKey))
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errBody(t, w)["code"])
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	raw, key, err := mw.GenerateKey("ci", []string{mw.ScopeAnalyze})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, mw.KeyPrefix))
	assert.Equal(t, raw[:8], key.KeyPrefix)
	assert.NotEqual(t, raw, key.KeyHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)))
	assert.Equal(t, "ci", key.Name)

	raw2, _, err := mw.GenerateKey("ci", nil)
	require.NoError(t, err)
	assert.NotEqual(t, raw, raw2)
}

// --- Rate Limit ---

func withKey(prefix string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	return req.WithContext(mw.WithAPIKey(req.Context(), uuid.New(), prefix, nil))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	counter := &mockCounter{}
	handler := mw.NewRateLimit(counter, 60).Limit(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withKey("md_test1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))

	reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.Zero(t, reset%60, "reset should fall on a minute boundary")
	assert.True(t, strings.HasPrefix(counter.lastKey, "ratelimit:md_test1:"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	handler := mw.NewRateLimit(&mockCounter{counter: 60}, 60).Limit(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withKey("md_over1"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 60)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	handler := mw.NewRateLimit(&mockCounter{err: errors.New("redis down")}, 60).Limit(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withKey("md_test1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_NoKeyPrefix_PassThrough(t *testing.T) {
	handler := mw.NewRateLimit(&mockCounter{}, 0).Limit(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Recovery / Logging / Tracing ---

func TestRecovery_RepanicsAbort(t *testing.T) {
	aborting := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	})
	assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		mw.Recovery(aborting).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	})
}

func TestPrincipal_Can(t *testing.T) {
	p := mw.Principal{Scopes: []string{mw.ScopeRules}}
	assert.True(t, p.Can(mw.ScopeRules))
	assert.False(t, p.Can(mw.ScopeAnalyze))
	assert.True(t, mw.Principal{Scopes: []string{mw.ScopeAdmin}}.Can(mw.ScopeAnalyze))

	_, ok := mw.PrincipalFrom(context.Background())
	assert.False(t, ok)
}

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})
	w := httptest.NewRecorder()
	mw.Recovery(panicking).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestLogger_PassesStatus(t *testing.T) {
	teapot := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	w := httptest.NewRecorder()
	mw.Logger(teapot).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestTracing_PassesThrough(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Tracing(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
