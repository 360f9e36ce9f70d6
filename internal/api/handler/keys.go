package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/kiranshivaraju/mdmdedup/internal/api/middleware"
	"github.com/kiranshivaraju/mdmdedup/internal/api/response"
	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// KeyStore manages API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type createKeyResponse struct {
	*models.APIKey
	// Key is the raw secret. It is only ever returned here.
	Key string `json:"key"`
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
func NewCreateKeyHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if err := response.Decode(w, r, &body); err != nil {
			response.BadRequest(w, err.Error())
			return
		}
		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			response.BadRequest(w, "name is required")
			return
		}
		if len(body.Scopes) == 0 {
			body.Scopes = []string{mw.ScopeAnalyze}
		}
		for _, s := range body.Scopes {
			if !models.KnownScope(s) {
				response.BadRequest(w, "unknown scope: "+s)
				return
			}
		}

		raw, key, err := mw.GenerateKey(body.Name, body.Scopes)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := ks.CreateAPIKey(r.Context(), key); err != nil {
			writeError(w, err)
			return
		}
		response.Created(w, createKeyResponse{APIKey: key, Key: raw})
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/admin/keys.
func NewListKeysHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := ks.ListAPIKeys(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.List(w, keys, len(keys))
	}
}

// NewRevokeKeyHandler returns an http.HandlerFunc for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(ks KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.BadRequest(w, "Invalid key ID format")
			return
		}
		if err := ks.RevokeAPIKey(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
