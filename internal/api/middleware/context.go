package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/mdmdedup/pkg/models"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	KeyID  uuid.UUID
	Prefix string
	Scopes []string
}

// Can reports whether the principal holds scope. Admin holds every scope.
func (p Principal) Can(scope string) bool {
	return slices.Contains(p.Scopes, scope) || slices.Contains(p.Scopes, models.ScopeAdmin)
}

type principalKey struct{}

// WithAPIKey stores the authenticated key's identity in ctx.
func WithAPIKey(ctx context.Context, id uuid.UUID, prefix string, scopes []string) context.Context {
	return context.WithValue(ctx, principalKey{}, Principal{KeyID: id, Prefix: prefix, Scopes: scopes})
}

// PrincipalFrom returns the caller recorded by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// GetAPIKeyID returns the ID of the key that authenticated the request.
func GetAPIKeyID(r *http.Request) (uuid.UUID, bool) {
	p, ok := PrincipalFrom(r.Context())
	return p.KeyID, ok
}
