package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/meridianhealth/patient-portal/internal/httpx"
	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/xerrors"
)

// Recover converts handler panics into a generic 500 so internal detail
// never reaches the client. The stack goes to the server log only.
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if onPanic != nil {
					onPanic()
				}

				L := base
				if L == nil {
					L = log.FromContext(r.Context())
				}
				L.Error(r.Context(), xerrors.Newf("panic: %v", rec), "recovered http panic",
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				httpx.Write(w, httpx.Internal())
			}()

			next.ServeHTTP(w, r)
		})
	}
}
