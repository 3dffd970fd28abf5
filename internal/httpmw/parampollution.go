package httpmw

import (
	"net/http"
	"net/url"
)

// defaultMultiValueParams are the query parameters allowed to carry more
// than one value. Everything else collapses to its last occurrence, which
// defeats parameter-pollution tricks that smuggle a second value past
// validation that only inspected the first.
var defaultMultiValueParams = []string{"sort", "fields", "page", "limit"}

// ParamPollution collapses duplicate query parameters to a single value,
// keeping the last occurrence. Parameters named in allow keep all values.
// A nil allow list uses defaultMultiValueParams.
func ParamPollution(allow []string) func(http.Handler) http.Handler {
	if allow == nil {
		allow = defaultMultiValueParams
	}
	allowed := make(map[string]bool, len(allow))
	for _, p := range allow {
		allowed[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				q := r.URL.Query()
				changed := false
				out := make(url.Values, len(q))
				for k, vs := range q {
					if len(vs) > 1 && !allowed[k] {
						out.Set(k, vs[len(vs)-1])
						changed = true
						continue
					}
					out[k] = vs
				}
				if changed {
					r.URL.RawQuery = out.Encode()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
