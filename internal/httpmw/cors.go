package httpmw

import (
	"net/http"
	"strings"

	"github.com/meridianhealth/patient-portal/internal/httpx"
)

// CORSOptions configures the origin-control stage.
type CORSOptions struct {
	// AllowedOrigins is the closed set of browser origins permitted to call
	// the portal with credentials.
	AllowedOrigins []string
	// OnRejected is invoked once per rejected origin. Wired to a metrics
	// counter.
	OnRejected func()
}

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-Request-Id"
)

// CORS accepts requests with no declared Origin unconditionally (non-browser
// clients), and rejects requests declaring an origin outside the allow list
// before any later stage runs. Allowed origins are echoed back with
// credentials permitted and the method/header surface restricted.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed[strings.TrimRight(origin, "/")] {
				if opts.OnRejected != nil {
					opts.OnRejected()
				}
				httpx.Write(w, httpx.OriginRejected())
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			// responses vary by Origin, keep shared caches honest
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
