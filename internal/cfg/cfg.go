package cfg

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/meridianhealth/patient-portal/internal/log"
)

// App is the full configuration surface, loaded once at startup. Secrets may
// be literal values or ssm:/kms: references resolved by internal/secrets
// before the pipeline is built.
type App struct {
	LogJSON  bool
	LogLevel string

	HTTPPort  int
	AdminPort int

	AppEnv string // development|production; production forces Secure cookies

	EnablePprof     bool
	EnableTracing   bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	CORSOrigin string // comma-separated allowed origins

	RateLimitWindowMS        int
	RateLimitMaxRequests     int
	AuthRateLimitMaxAttempts int
	RateLimitRedisAddr       string // empty = in-process store

	MaxBodyBytes     int64
	TrustedProxyHops int

	SessionSecret     string
	SessionTTLHours   int
	SessionCookieName string

	EncryptionKey string // 64 hex chars, or an ssm:/kms: reference

	AuditLogEnabled bool
	AuditS3Bucket   string
	AuditS3Prefix   string
}

// Register binds all config fields to the given FlagSet with defaults inline.
// Flag names are chosen so FillFromEnv with an empty prefix yields the
// documented env surface (rate-limit-window-ms -> RATE_LIMIT_WINDOW_MS).
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.AppEnv, "app-env", "development", "development|production")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.CORSOrigin, "cors-origin", "http://localhost:3000", "comma-separated allowed origins")
	fs.IntVar(&c.RateLimitWindowMS, "rate-limit-window-ms", 900000, "rate limit window in milliseconds")
	fs.IntVar(&c.RateLimitMaxRequests, "rate-limit-max-requests", 100, "max API requests per client per window")
	fs.IntVar(&c.AuthRateLimitMaxAttempts, "auth-rate-limit-max-attempts", 5, "max failed auth attempts per client per window")
	fs.StringVar(&c.RateLimitRedisAddr, "rate-limit-redis-addr", "", "redis host:port for fleet-wide rate limit counters (empty = in-process)")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 10<<20, "request body size ceiling in bytes")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "trusted reverse proxies between clients and this server")
	fs.StringVar(&c.SessionSecret, "session-secret", "", "session signing secret (required; literal, ssm:/path, or kms:blob)")
	fs.IntVar(&c.SessionTTLHours, "session-ttl-hours", 24, "session lifetime in hours (1..24)")
	fs.StringVar(&c.SessionCookieName, "session-cookie-name", "portal_session", "session cookie name")
	fs.StringVar(&c.EncryptionKey, "encryption-key", "", "field encryption key (required; 64 hex chars, ssm:/path, or kms:blob)")
	fs.BoolVar(&c.AuditLogEnabled, "audit-log-enabled", false, "record audit entries for every request")
	fs.StringVar(&c.AuditS3Bucket, "audit-s3-bucket", "", "s3 bucket for durable audit entries (empty = log sink)")
	fs.StringVar(&c.AuditS3Prefix, "audit-s3-prefix", "audit", "s3 key prefix for audit entries")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// IsSecretRef reports whether v is an indirect secret reference that
// internal/secrets resolves at startup rather than a literal value.
func IsSecretRef(v string) bool {
	return strings.HasPrefix(v, "ssm:") || strings.HasPrefix(v, "kms:")
}

// Origins splits the CORS_ORIGIN list into trimmed, non-empty entries.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Production reports whether secure-cookie enforcement applies.
func (c App) Production() bool { return c.AppEnv == "production" }

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil. Any error here is
// fatal: the process must not serve traffic on a bad configuration.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	switch c.AppEnv {
	case "development", "production":
	default:
		errs = append(errs, fmt.Errorf("invalid APP_ENV %q (must be development or production)", c.AppEnv))
	}

	if len(c.Origins()) == 0 {
		errs = append(errs, errors.New("CORS_ORIGIN must list at least one origin"))
	}
	for _, o := range c.Origins() {
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CORS_ORIGIN entry %q must be scheme://host[:port]", o))
		}
	}

	if c.RateLimitWindowMS < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive (got %d)", c.RateLimitWindowMS))
	}
	if c.RateLimitMaxRequests < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be positive (got %d)", c.RateLimitMaxRequests))
	}
	if c.AuthRateLimitMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("AUTH_RATE_LIMIT_MAX_ATTEMPTS must be positive (got %d)", c.AuthRateLimitMaxAttempts))
	}
	if c.RateLimitRedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RateLimitRedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_REDIS_ADDR must be host:port (got %q): %v", c.RateLimitRedisAddr, err))
		}
	}

	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive (got %d)", c.MaxBodyBytes))
	}
	if c.TrustedProxyHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative (got %d)", c.TrustedProxyHops))
	}

	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}
	if c.SessionTTLHours < 1 || c.SessionTTLHours > 24 {
		errs = append(errs, fmt.Errorf("SESSION_TTL_HOURS must be 1..24 (got %d)", c.SessionTTLHours))
	}
	if c.SessionCookieName == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME must not be empty"))
	}

	if c.EncryptionKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY is required"))
	} else if !IsSecretRef(c.EncryptionKey) {
		// literal keys are validated here; indirect references are length
		// checked after resolution
		if err := CheckEncryptionKey(c.EncryptionKey); err != nil {
			errs = append(errs, err)
		}
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, errors.New("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
	}
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CheckEncryptionKey enforces the AES-256 key contract on a resolved value:
// 64 hex characters decoding to exactly 32 bytes.
func CheckEncryptionKey(v string) error {
	raw, err := hex.DecodeString(v)
	if err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must decode to exactly 32 bytes (got %d)", len(raw))
	}
	return nil
}
