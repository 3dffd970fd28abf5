package httpmw

import (
	"net/http"

	"github.com/meridianhealth/patient-portal/internal/httpx"
)

// MaxBody bounds request body size to keep memory use predictable.
// A declared Content-Length over the ceiling is rejected before any of the
// body is read; chunked or lying clients hit the MaxBytesReader limit when a
// later stage reads the body.
func MaxBody(bytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > bytes {
				httpx.Write(w, httpx.PayloadTooLarge())
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, bytes)
			next.ServeHTTP(w, r)
		})
	}
}
