// Package authz carries the authenticated identity through the request
// context and enforces access rules on protected resources.
package authz

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhealth/patient-portal/internal/httpx"
)

// Roles understood by the portal. Unknown role strings carry no privilege.
const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

// Identity is the resolved session principal.
type Identity struct {
	UserID    string
	Role      string
	SessionID string
}

func (id Identity) Admin() bool { return id.Role == RoleAdmin }

type identityKey struct{}

// WithIdentity stores the identity in the context. A zero UserID means
// anonymous and is not stored.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if id.UserID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity and whether one is present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAuth rejects unauthenticated requests with a 401. Session
// resolution has already run by the time this executes, so a missing
// identity means the caller presented no valid session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			httpx.Write(w, httpx.Unauthorized())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwnerOrAdmin guards routes whose {param} URL segment names the
// owning patient. Patients reach only their own records; admins reach all.
func RequireOwnerOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				httpx.Write(w, httpx.Unauthorized())
				return
			}
			owner := chi.URLParam(r, param)
			if !id.Admin() && id.UserID != owner {
				httpx.Write(w, httpx.Forbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
