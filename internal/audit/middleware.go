package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/meridianhealth/patient-portal/internal/httpmw"
)

// RequestInfo is a mutable per-request holder. The observer middleware runs
// outside session resolution, so the identity is not known yet when the
// holder is created; the session stage fills it in later through the
// context.
type RequestInfo struct {
	mu     sync.Mutex
	userID string
	role   string
}

func (ri *RequestInfo) SetIdentity(userID, role string) {
	ri.mu.Lock()
	ri.userID = userID
	ri.role = role
	ri.mu.Unlock()
}

func (ri *RequestInfo) identity() (string, string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.userID, ri.role
}

type infoKey struct{}

// InfoFromContext returns the request's audit holder, or nil outside the
// observed pipeline.
func InfoFromContext(ctx context.Context) *RequestInfo {
	ri, _ := ctx.Value(infoKey{}).(*RequestInfo)
	return ri
}

// ObserveIdentity records the resolved identity on the request's audit
// holder, if one exists. Safe to call from any pipeline stage.
func ObserveIdentity(ctx context.Context, userID, role string) {
	if ri := InfoFromContext(ctx); ri != nil {
		ri.SetIdentity(userID, role)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

// Observer returns middleware that records one audit entry per request,
// including requests rejected by inner stages. It must wrap the stages
// whose outcomes it needs to see.
func Observer(rec *Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ri := &RequestInfo{}
			ctx := context.WithValue(r.Context(), infoKey{}, ri)

			sw := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			userID, role := ri.identity()

			rec.Record(Entry{
				Timestamp: time.Now(),
				RequestID: httpmw.RequestIDFromContext(ctx),
				UserID:    userID,
				Role:      role,
				Method:    r.Method,
				Path:      r.URL.Path,
				ClientIP:  httpmw.ClientIPFromContext(ctx),
				UserAgent: r.UserAgent(),
				Status:    status,
			})
		})
	}
}
