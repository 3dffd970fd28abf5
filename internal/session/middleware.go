package session

import (
	"context"
	"net/http"

	"github.com/meridianhealth/patient-portal/internal/authz"
	"github.com/meridianhealth/patient-portal/internal/log"
)

// Options configures cookie issuance and resolution.
type Options struct {
	CookieName string
	// Secure marks the cookie HTTPS-only. Always true in production.
	Secure bool
}

func (o Options) cookieName() string {
	if o.CookieName == "" {
		return DefaultCookieName
	}
	return o.CookieName
}

// SetCookie writes the session cookie on a login response.
func SetCookie(w http.ResponseWriter, opts Options, token string, ttlSeconds int) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   ttlSeconds,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie on logout or when a presented
// cookie fails verification.
func ClearCookie(w http.ResponseWriter, opts Options) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.cookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Resolve returns middleware that turns a valid session cookie into an
// identity in the request context. It NEVER rejects: no cookie, a garbled
// token, or an expired one all continue anonymously. An invalid cookie is
// cleared so the browser stops replaying it. observe, when non-nil, is
// called with the resolved identity; the audit trail hooks in there.
func Resolve(codec *Codec, opts Options, base log.Logger, observe func(context.Context, authz.Identity)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(opts.cookieName())
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := codec.Verify(c.Value)
			if err != nil {
				ClearCookie(w, opts)
				log.FromContextOr(r.Context(), base).Debug(r.Context(), "discarded invalid session cookie",
					"reason", err.Error(),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := authz.WithIdentity(r.Context(), id)
			if observe != nil {
				observe(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
