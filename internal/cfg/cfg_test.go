package cfg

import (
	"flag"
	"strings"
	"testing"
)

func validApp() App {
	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)
	c.SessionSecret = "test-secret"
	c.EncryptionKey = strings.Repeat("ab", 32)
	return c
}

func TestValidate_DefaultsWithSecrets(t *testing.T) {
	c := validApp()
	if err := Validate(c); err != nil {
		t.Fatalf("defaults with secrets should validate: %v", err)
	}
}

func TestValidate_RequiredSecrets(t *testing.T) {
	c := validApp()
	c.SessionSecret = ""
	c.EncryptionKey = ""
	err := Validate(c)
	if err == nil {
		t.Fatal("missing secrets should fail validation")
	}
	if !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Errorf("error should name SESSION_SECRET: %v", err)
	}
	if !strings.Contains(err.Error(), "ENCRYPTION_KEY") {
		t.Errorf("error should name ENCRYPTION_KEY: %v", err)
	}
}

func TestValidate_EncryptionKeyLength(t *testing.T) {
	c := validApp()
	c.EncryptionKey = "abcd" // 2 bytes
	if err := Validate(c); err == nil {
		t.Fatal("short key should fail")
	}
	c.EncryptionKey = "zz" + strings.Repeat("ab", 31)
	if err := Validate(c); err == nil {
		t.Fatal("non-hex key should fail")
	}
	// indirect references are not length checked until resolution
	c.EncryptionKey = "ssm:/portal/prod/encryption-key"
	if err := Validate(c); err != nil {
		t.Fatalf("ssm reference should pass pre-resolution validation: %v", err)
	}
}

func TestValidate_Ranges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*App)
	}{
		{"bad http port", func(c *App) { c.HTTPPort = 0 }},
		{"port clash", func(c *App) { c.AdminPort = c.HTTPPort }},
		{"bad log level", func(c *App) { c.LogLevel = "loud" }},
		{"bad app env", func(c *App) { c.AppEnv = "staging" }},
		{"empty origins", func(c *App) { c.CORSOrigin = " , " }},
		{"malformed origin", func(c *App) { c.CORSOrigin = "not a url" }},
		{"zero window", func(c *App) { c.RateLimitWindowMS = 0 }},
		{"zero max", func(c *App) { c.RateLimitMaxRequests = 0 }},
		{"zero auth max", func(c *App) { c.AuthRateLimitMaxAttempts = 0 }},
		{"bad redis addr", func(c *App) { c.RateLimitRedisAddr = "localhost" }},
		{"zero body ceiling", func(c *App) { c.MaxBodyBytes = 0 }},
		{"negative hops", func(c *App) { c.TrustedProxyHops = -1 }},
		{"ttl too long", func(c *App) { c.SessionTTLHours = 48 }},
		{"ttl zero", func(c *App) { c.SessionTTLHours = 0 }},
		{"empty cookie name", func(c *App) { c.SessionCookieName = "" }},
		{"bad sample", func(c *App) { c.TraceSample = 1.5 }},
	}
	for _, tc := range cases {
		c := validApp()
		tc.mutate(&c)
		if err := Validate(c); err == nil {
			t.Errorf("%s: expected validation failure", tc.name)
		}
	}
}

func TestOrigins(t *testing.T) {
	c := App{CORSOrigin: "http://localhost:3000, https://portal.example.com ,"}
	got := c.Origins()
	if len(got) != 2 {
		t.Fatalf("origins = %v", got)
	}
	if got[1] != "https://portal.example.com" {
		t.Fatalf("origins[1] = %q", got[1])
	}
}

func TestFillFromEnv_Precedence(t *testing.T) {
	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)

	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "7")
	t.Setenv("CORS_ORIGIN", "https://env.example.com")
	// explicit CLI flag beats env
	if err := fs.Parse([]string{"-cors-origin", "https://cli.example.com"}); err != nil {
		t.Fatal(err)
	}

	FillFromEnv(fs, "", nil)

	if c.RateLimitMaxRequests != 7 {
		t.Errorf("RateLimitMaxRequests = %d, want 7 from env", c.RateLimitMaxRequests)
	}
	if c.CORSOrigin != "https://cli.example.com" {
		t.Errorf("CORSOrigin = %q, cli flag should win over env", c.CORSOrigin)
	}
}

func TestFillFromEnv_InvalidValueIgnored(t *testing.T) {
	var c App
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	Register(fs, &c)

	t.Setenv("RATE_LIMIT_WINDOW_MS", "not-a-number")
	var logged bool
	FillFromEnv(fs, "", func(string, ...any) { logged = true })

	if c.RateLimitWindowMS != 900000 {
		t.Errorf("invalid env should leave default, got %d", c.RateLimitWindowMS)
	}
	if !logged {
		t.Error("invalid env value should be reported")
	}
}

func TestIsSecretRef(t *testing.T) {
	if !IsSecretRef("ssm:/a/b") || !IsSecretRef("kms:AQID") {
		t.Fatal("references should be detected")
	}
	if IsSecretRef("deadbeef") {
		t.Fatal("literal should not be a reference")
	}
}

func TestProduction(t *testing.T) {
	if (App{AppEnv: "development"}).Production() {
		t.Fatal("development should not be production")
	}
	if !(App{AppEnv: "production"}).Production() {
		t.Fatal("production flag lost")
	}
}
