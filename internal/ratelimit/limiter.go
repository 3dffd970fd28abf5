package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/meridianhealth/patient-portal/internal/httpmw"
	"github.com/meridianhealth/patient-portal/internal/httpx"
	"github.com/meridianhealth/patient-portal/internal/log"
)

// Limiter is the general fixed-window API limiter: every request to an
// API-prefixed path consumes one unit of the client's budget.
type Limiter struct {
	store  Store
	window time.Duration
	max    int

	// PathPrefix restricts limiting to matching paths ("/api/" by default).
	PathPrefix string

	// OnDenied is invoked on every rejected request, for metrics.
	OnDenied func()
}

func NewLimiter(store Store, window time.Duration, max int) *Limiter {
	return &Limiter{store: store, window: window, max: max, PathPrefix: "/api/"}
}

// Middleware rejects with 429 once the client exceeds max requests inside
// the window. Store failures fail open: availability of the portal is not
// held hostage to the counter backend, and the failure is logged.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.PathPrefix != "" && !strings.HasPrefix(r.URL.Path, l.PathPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		key := "api:" + clientKey(r)
		res, err := l.store.Incr(r.Context(), key, l.window)
		if err != nil {
			log.FromContext(r.Context()).Error(r.Context(), err, "rate limit store unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		if res.Count > l.max {
			if l.OnDenied != nil {
				l.OnDenied()
			}
			httpx.Write(w, httpx.RateLimited(retryAfterSec(res.Reset)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if ip := httpmw.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	// fallback when the client IP stage didn't run (tests, direct use)
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfterSec(reset time.Time) int {
	sec := int(time.Until(reset).Seconds()) + 1
	if sec < 1 {
		sec = 1
	}
	return sec
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
