package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/meridianhealth/patient-portal/internal/audit"
	"github.com/meridianhealth/patient-portal/internal/cfg"
	"github.com/meridianhealth/patient-portal/internal/httpserver"
	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/metrics"
	"github.com/meridianhealth/patient-portal/internal/opshttp"
	"github.com/meridianhealth/patient-portal/internal/otelx"
	"github.com/meridianhealth/patient-portal/internal/pipeline"
	"github.com/meridianhealth/patient-portal/internal/portalhttp"
	"github.com/meridianhealth/patient-portal/internal/prof"
	"github.com/meridianhealth/patient-portal/internal/probe"
	"github.com/meridianhealth/patient-portal/internal/ratelimit"
	"github.com/meridianhealth/patient-portal/internal/records"
	"github.com/meridianhealth/patient-portal/internal/secrets"
	"github.com/meridianhealth/patient-portal/internal/session"
	"github.com/meridianhealth/patient-portal/internal/userstore"
	v "github.com/meridianhealth/patient-portal/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, build_date=%s, go=%s)\n",
			vi.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion)
		os.Exit(0)
	}

	// empty prefix: flag rate-limit-window-ms maps to env RATE_LIMIT_WINDOW_MS
	cfg.FillFromEnv(flag.CommandLine, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Version:    v.Version,
		Commit:     v.Commit,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing patient portal",
		"version", vi.Version,
		"commit", vi.Commit,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"app_env", conf.AppEnv,
		"cors_origins", conf.Origins(),
		"rate_limit_window_ms", conf.RateLimitWindowMS,
		"rate_limit_max_requests", conf.RateLimitMaxRequests,
		"auth_rate_limit_max_attempts", conf.AuthRateLimitMaxAttempts,
		"rate_limit_redis", conf.RateLimitRedisAddr != "",
		"max_body_bytes", conf.MaxBodyBytes,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"audit_log_enabled", conf.AuditLogEnabled,
		"audit_s3_bucket", conf.AuditS3Bucket,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
		},
	})
	profActive := conf.EnablePyroscope && err == nil
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Insecure is fine, the collector is a localhost sidecar
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(profActive)

	// AWS clients are needed for secret references and the S3 audit sink;
	// skip the SDK entirely when nothing is configured to use it
	needAWS := cfg.IsSecretRef(conf.SessionSecret) ||
		cfg.IsSecretRef(conf.EncryptionKey) ||
		conf.AuditS3Bucket != ""

	var s3Client *s3.Client
	var resolver *secrets.Resolver
	if needAWS {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		s3Client = s3.NewFromConfig(awsCfg)
		resolver = secrets.NewResolver(ssm.NewFromConfig(awsCfg), kms.NewFromConfig(awsCfg))
	} else {
		resolver = secrets.NewResolver(nil, nil)
	}

	sessionSecret, err := resolver.Resolve(ctx, conf.SessionSecret)
	if err != nil {
		L.Error(ctx, err, "resolving SESSION_SECRET")
		os.Exit(1)
	}
	encryptionKeyHex, err := resolver.Resolve(ctx, conf.EncryptionKey)
	if err != nil {
		L.Error(ctx, err, "resolving ENCRYPTION_KEY")
		os.Exit(1)
	}
	if err := cfg.CheckEncryptionKey(encryptionKeyHex); err != nil {
		L.Error(ctx, err, "validating resolved ENCRYPTION_KEY")
		os.Exit(1)
	}
	encryptionKey, _ := hex.DecodeString(encryptionKeyHex)

	codec, err := session.NewCodec([]byte(sessionSecret), time.Duration(conf.SessionTTLHours)*time.Hour)
	if err != nil {
		L.Error(ctx, err, "building session codec")
		os.Exit(1)
	}
	sessOpts := session.Options{
		CookieName: conf.SessionCookieName,
		Secure:     conf.Production(),
	}

	// rate limit counters: redis when configured, in-process otherwise
	var store ratelimit.Store
	if conf.RateLimitRedisAddr != "" {
		store = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{
			Addr: conf.RateLimitRedisAddr,
		}))
		L.Info(ctx, "rate limit counters in redis", "addr", conf.RateLimitRedisAddr)
	} else {
		store = ratelimit.NewMemoryStore(ctx)
		L.Info(ctx, "rate limit counters in process memory")
	}

	window := time.Duration(conf.RateLimitWindowMS) * time.Millisecond
	limiter := ratelimit.NewLimiter(store, window, conf.RateLimitMaxRequests)
	limiter.OnDenied = m.IncRateLimitDenied
	authLimiter := ratelimit.NewAuthLimiter(store, window, conf.AuthRateLimitMaxAttempts)
	authLimiter.OnDenied = m.IncAuthRateLimitDenied

	// audit trail: S3 when a bucket is configured, structured log otherwise
	var recorder *audit.Recorder
	if conf.AuditLogEnabled {
		var sink audit.Sink
		if conf.AuditS3Bucket != "" {
			sink = audit.NewS3Sink(s3Client, conf.AuditS3Bucket, conf.AuditS3Prefix)
			L.Info(ctx, "audit entries going to s3", "bucket", conf.AuditS3Bucket, "prefix", conf.AuditS3Prefix)
		} else {
			sink = audit.LogSink{L: lg.With("component", "audit")}
			L.Info(ctx, "audit entries going to the application log")
		}
		recorder = audit.NewRecorder(sink, L, audit.RecorderOptions{
			OnDrop: m.IncAuditDropped,
		})
	}

	users := userstore.NewMemory()
	recStore, err := records.NewMemory(encryptionKey)
	if err != nil {
		L.Error(ctx, err, "building record store")
		os.Exit(1)
	}

	handlers := &portalhttp.Handlers{
		Users:    users,
		Records:  recStore,
		Codec:    codec,
		SessOpts: sessOpts,
		Hooks: portalhttp.Hooks{
			OnSessionIssued: m.IncSessionsIssued,
			OnLoginFailure:  m.IncLoginFailures,
		},
	}

	pipe := pipeline.New(pipeline.Config{
		AllowedOrigins: conf.Origins(),
		MaxBodyBytes:   conf.MaxBodyBytes,
		TrustedHops:    conf.TrustedProxyHops,
		TracingEnabled: conf.EnableTracing,
	}, pipeline.Deps{
		Logger:   L,
		Metrics:  m,
		Limiter:  limiter,
		Audit:    recorder,
		Codec:    codec,
		SessOpts: sessOpts,
	})

	var gate probe.ShutdownGate
	readiness := probe.All(gate.Probe())

	portalStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:    L,
		Port:      conf.HTTPPort,
		Pipeline:  pipe,
		Health:    probe.Static(true, ""),
		Readiness: readiness,
		APIRoutes: func(r chi.Router) {
			handlers.Routes(r, authLimiter.Middleware)
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start portal http listener")
		os.Exit(1)
	}
	defer func() { _ = portalStop(context.Background()) }()

	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      probe.Static(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	drainCh := make(chan os.Signal, 1)
	signal.Notify(drainCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-drainCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(drainCh)

	if err := portalStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "portal http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if recorder != nil {
		if err := recorder.Close(shutdownCtx); err != nil {
			L.Error(context.Background(), err, "audit recorder shutdown")
		}
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}
