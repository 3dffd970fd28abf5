package ratelimit

import (
	"net/http"
	"time"

	"github.com/meridianhealth/patient-portal/internal/httpx"
	"github.com/meridianhealth/patient-portal/internal/log"
)

// AuthLimiter guards authentication endpoints with a much lower ceiling than
// the general limiter. Only unsuccessful attempts consume budget, so a user
// who logs in correctly between typos is not locked out.
type AuthLimiter struct {
	store  Store
	window time.Duration
	max    int

	OnDenied func()
}

func NewAuthLimiter(store Store, window time.Duration, max int) *AuthLimiter {
	return &AuthLimiter{store: store, window: window, max: max}
}

type attemptWriter struct {
	http.ResponseWriter
	status int
}

func (w *attemptWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *attemptWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

// Middleware rejects the request before the handler runs once the client has
// burned through max failed attempts in the window; otherwise the handler
// runs and a 4xx outcome records one more failure.
func (l *AuthLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := "auth:" + clientKey(r)

		res, err := l.store.Peek(ctx, key)
		if err != nil {
			log.FromContext(ctx).Error(ctx, err, "auth rate limit store unavailable, allowing attempt")
			next.ServeHTTP(w, r)
			return
		}
		if res.Count >= l.max {
			if l.OnDenied != nil {
				l.OnDenied()
			}
			httpx.Write(w, httpx.RateLimited(retryAfterSec(res.Reset)))
			return
		}

		aw := &attemptWriter{ResponseWriter: w}
		next.ServeHTTP(aw, r)

		if aw.status >= 400 && aw.status < 500 {
			if _, err := l.store.Incr(ctx, key, l.window); err != nil {
				log.FromContext(ctx).Error(ctx, err, "recording failed auth attempt")
			}
		}
	})
}
