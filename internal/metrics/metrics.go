package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianhealth/patient-portal/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal     prometheus.Counter
	authRatelimitDeniedTotal prometheus.Counter
	sanitizerRewritesTotal   prometheus.Counter
	originRejectedTotal      prometheus.Counter
	auditDroppedTotal        prometheus.Counter
	sessionsIssuedTotal      prometheus.Counter
	loginFailuresTotal       prometheus.Counter

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the general rate limiter",
		}),
		authRatelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_attempts_rate_limited_total",
			Help: "Total login attempts rejected by the auth rate limiter",
		}),
		sanitizerRewritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "request_sanitizer_rewrites_total",
			Help: "Total requests with at least one sanitized field",
		}),
		originRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_origin_rejected_total",
			Help: "Total requests rejected for a disallowed Origin",
		}),
		auditDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_dropped_total",
			Help: "Total audit entries lost to a full buffer or sink failure",
		}),
		sessionsIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessions_issued_total",
			Help: "Total session cookies issued by successful logins",
		}),
		loginFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "login_failures_total",
			Help: "Total failed login attempts",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.errorsTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.authRatelimitDeniedTotal,
		m.sanitizerRewritesTotal,
		m.originRejectedTotal,
		m.auditDroppedTotal,
		m.sessionsIssuedTotal,
		m.loginFailuresTotal,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic()             { m.httpPanicTotal.Inc() }
func (m *ServerMetrics) IncRateLimitDenied()       { m.ratelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncAuthRateLimitDenied()   { m.authRatelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncSanitizerRewrites()     { m.sanitizerRewritesTotal.Inc() }
func (m *ServerMetrics) IncOriginRejected()        { m.originRejectedTotal.Inc() }
func (m *ServerMetrics) IncAuditDropped()          { m.auditDroppedTotal.Inc() }
func (m *ServerMetrics) IncSessionsIssued()        { m.sessionsIssuedTotal.Inc() }
func (m *ServerMetrics) IncLoginFailures()         { m.loginFailuresTotal.Inc() }

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
