package httpmw

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/meridianhealth/patient-portal/internal/httpx"
	"github.com/meridianhealth/patient-portal/internal/log"
)

var markupRe = regexp.MustCompile(`<[^>]*>`)

// Sanitize rewrites request input that resembles NoSQL operator injection
// (keys beginning with the $ operator sigil) and strips markup from string
// values to neutralize script injection. Applied to query parameters, JSON
// bodies, and urlencoded forms.
//
// Sanitized field NAMES are logged as a warning; values never are. The warn
// log is throttled so a flood of hostile requests cannot turn the sanitizer
// into a log-spam vector.
// onRewrite, when non-nil, is invoked once per request that needed
// sanitizing. Wired to a metrics counter.
func Sanitize(base log.Logger, onRewrite func()) func(http.Handler) http.Handler {
	warnLimit := rate.NewLimiter(rate.Every(time.Second), 5)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var touched []string

			// query parameters
			if r.URL.RawQuery != "" {
				if q, changed := sanitizeValues(r.URL.Query(), &touched); changed {
					r.URL.RawQuery = q.Encode()
				}
			}

			ct := r.Header.Get("Content-Type")
			switch {
			case strings.HasPrefix(ct, "application/json") && r.ContentLength != 0:
				body, err := io.ReadAll(r.Body)
				if err != nil {
					// MaxBytesReader tripping surfaces here
					httpx.Write(w, httpx.PayloadTooLarge())
					return
				}
				var doc any
				if err := json.Unmarshal(body, &doc); err != nil {
					httpx.Write(w, httpx.Invalid("body", "request body is not valid JSON"))
					return
				}
				doc = sanitizeJSON(doc, "", &touched)
				clean, err := json.Marshal(doc)
				if err != nil {
					httpx.Write(w, httpx.Internal())
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(clean))
				r.ContentLength = int64(len(clean))

			case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
				if err := r.ParseForm(); err != nil {
					httpx.Write(w, httpx.PayloadTooLarge())
					return
				}
				if form, changed := sanitizeValues(r.PostForm, &touched); changed {
					r.PostForm = form
				}
			}

			if len(touched) > 0 {
				if onRewrite != nil {
					onRewrite()
				}
				if warnLimit.Allow() {
					log.FromContextOr(r.Context(), base).Warn(r.Context(), "sanitized suspicious request input",
						"fields", touched,
						"path", r.URL.Path,
					)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func sanitizeKey(k string, touched *[]string) string {
	if strings.HasPrefix(k, "$") {
		*touched = append(*touched, k)
		return strings.ReplaceAll(k, "$", "_")
	}
	return k
}

func sanitizeString(s, field string, touched *[]string) string {
	if !markupRe.MatchString(s) {
		return s
	}
	*touched = append(*touched, field)
	return markupRe.ReplaceAllString(s, "")
}

func sanitizeValues(in url.Values, touched *[]string) (url.Values, bool) {
	before := len(*touched)
	out := make(url.Values, len(in))
	for k, vs := range in {
		nk := sanitizeKey(k, touched)
		for _, v := range vs {
			out.Add(nk, sanitizeString(v, nk, touched))
		}
	}
	return out, len(*touched) > before
}

func sanitizeJSON(v any, path string, touched *[]string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			nk := sanitizeKey(k, touched)
			childPath := nk
			if path != "" {
				childPath = path + "." + nk
			}
			out[nk] = sanitizeJSON(child, childPath, touched)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = sanitizeJSON(child, path, touched)
		}
		return t
	case string:
		return sanitizeString(t, path, touched)
	default:
		return v
	}
}
