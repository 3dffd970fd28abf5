// Package pipeline assembles the ordered middleware stack every portal
// request passes through. The ordering is a contract, not an
// implementation detail: headers are set before anything can reject,
// cheap rejections run before expensive stages, input is normalized
// before anything consumes it, and the audit observer wraps every stage
// whose outcome it must record.
package pipeline

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meridianhealth/patient-portal/internal/audit"
	"github.com/meridianhealth/patient-portal/internal/authz"
	"github.com/meridianhealth/patient-portal/internal/httpmw"
	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/metrics"
	"github.com/meridianhealth/patient-portal/internal/ratelimit"
	"github.com/meridianhealth/patient-portal/internal/session"
)

// Config is the behavioral surface of the stack.
type Config struct {
	AllowedOrigins  []string
	MaxBodyBytes    int64
	TrustedHops     int
	RequestIDHeader string
	// TracingEnabled adds the otelhttp stage. Ordering of the remaining
	// stages is unaffected.
	TracingEnabled bool
}

// Deps are the stateful collaborators. Metrics and Audit may be nil,
// those stages are then skipped; the security stages always run.
type Deps struct {
	Logger   log.Logger
	Metrics  *metrics.ServerMetrics
	Limiter  *ratelimit.Limiter
	Audit    *audit.Recorder
	Codec    *session.Codec
	SessOpts session.Options
}

type Pipeline struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// Stages returns the stack outermost first.
func (p *Pipeline) Stages() []func(http.Handler) http.Handler {
	d := p.deps

	var onPanic, onOriginRejected, onSanitized func()
	if d.Metrics != nil {
		onPanic = d.Metrics.IncHttpPanic
		onOriginRejected = d.Metrics.IncOriginRejected
		onSanitized = d.Metrics.IncSanitizerRewrites
	}

	var auditStage func(http.Handler) http.Handler
	if d.Audit != nil {
		auditStage = audit.Observer(d.Audit)
	}

	var limitStage func(http.Handler) http.Handler
	if d.Limiter != nil {
		limitStage = d.Limiter.Middleware
	}

	var metricsStage func(http.Handler) http.Handler
	if d.Metrics != nil {
		metricsStage = d.Metrics.Middleware
	}

	var traceStage func(http.Handler) http.Handler
	if p.cfg.TracingEnabled {
		traceStage = tracing
	}

	return []func(http.Handler) http.Handler{
		httpmw.SecurityHeaders,
		httpmw.Recover(d.Logger, onPanic),
		httpmw.RequestID(p.cfg.RequestIDHeader),
		httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: p.cfg.TrustedHops}),
		auditStage,
		httpmw.CORS(httpmw.CORSOptions{
			AllowedOrigins: p.cfg.AllowedOrigins,
			OnRejected:     onOriginRejected,
		}),
		limitStage,
		httpmw.MaxBody(p.cfg.MaxBodyBytes),
		httpmw.Sanitize(d.Logger, onSanitized),
		httpmw.ParamPollution(nil),
		session.Resolve(d.Codec, d.SessOpts, d.Logger, func(ctx context.Context, id authz.Identity) {
			audit.ObserveIdentity(ctx, id.UserID, id.Role)
		}),
		traceStage,
		metricsStage,
		httpmw.WithLogger(d.Logger),
		httpmw.AccessLog(),
	}
}

func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)
}

// Wrap composes the stages around h.
func (p *Pipeline) Wrap(h http.Handler) http.Handler {
	return httpmw.Chain(h, p.Stages()...)
}
