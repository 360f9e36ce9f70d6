package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// API key scopes. ScopeAdmin implies every other scope.
const (
	ScopeAnalyze = "analyze"
	ScopeRules   = "rules"
	ScopeAdmin   = "admin"
)

// KnownScope reports whether s is a scope the API recognises.
func KnownScope(s string) bool {
	return s == ScopeAnalyze || s == ScopeRules || s == ScopeAdmin
}

// APIKey authenticates a caller of the HTTP API. Only the bcrypt hash of the
// raw key is stored; the raw key is shown once when it is created.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasScope reports whether the key grants scope.
func (k *APIKey) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAdmin)
}

// Revoked reports whether the key has been soft-deleted.
func (k *APIKey) Revoked() bool { return k.DeletedAt != nil }
