// Package audit records one entry per API request for compliance review.
// Recording is best-effort: a failing or saturated audit path degrades to a
// drop counter, it never blocks or fails patient-facing requests.
package audit

import (
	"context"
	"time"

	"github.com/meridianhealth/patient-portal/internal/log"
)

// Entry is a single audit record. UserID is empty for anonymous requests.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Status    int       `json:"status"`
}

// Sink persists audit entries.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// LogSink emits audit entries into the structured application log.
type LogSink struct {
	L log.Logger
}

func (s LogSink) Write(ctx context.Context, e Entry) error {
	s.L.Info(ctx, "audit",
		"audit.timestamp", e.Timestamp.UTC().Format(time.RFC3339Nano),
		"audit.request_id", e.RequestID,
		"audit.user_id", e.UserID,
		"audit.role", e.Role,
		"audit.method", e.Method,
		"audit.path", e.Path,
		"audit.client_ip", e.ClientIP,
		"audit.user_agent", e.UserAgent,
		"audit.status", e.Status,
	)
	return nil
}
