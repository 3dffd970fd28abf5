package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/meridianhealth/patient-portal/internal/log"
	"github.com/meridianhealth/patient-portal/internal/probe"
)

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startOps(t *testing.T, opts Options) int {
	t.Helper()
	if opts.Port == 0 {
		opts.Port = getFreePort(t)
	}
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = stop(ctx) })
	return opts.Port
}

func opsGet(t *testing.T, port int, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, path))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func TestHealthEndpoints(t *testing.T) {
	port := startOps(t, Options{
		Health:    probe.Static(true, ""),
		Readiness: probe.Static(false, "warming up"),
	})

	resp, body := opsGet(t, port, "/-/healthy")
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthy = %d %q", resp.StatusCode, body)
	}

	resp, body = opsGet(t, port, "/-/ready")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "warming up") {
		t.Fatalf("ready body = %q, want reason", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP example\n"))
	})
	port := startOps(t, Options{Metrics: metrics})

	resp, body := opsGet(t, port, "/metrics")
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(body, "# HELP") {
		t.Fatalf("metrics = %d %q", resp.StatusCode, body)
	}
}

func TestPprofDisabledShadowed(t *testing.T) {
	port := startOps(t, Options{EnablePprof: false})

	resp, _ := opsGet(t, port, "/debug/pprof/")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof = %d, want 404 when disabled", resp.StatusCode)
	}
}

func TestPprofEnabled(t *testing.T) {
	port := startOps(t, Options{EnablePprof: true})

	resp, body := opsGet(t, port, "/debug/pprof/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof = %d, want 200 when enabled", resp.StatusCode)
	}
	if !strings.Contains(body, "goroutine") {
		t.Fatalf("pprof index missing profiles: %q", body)
	}
}

func TestStopIdempotent(t *testing.T) {
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), Options{Port: getFreePort(t)})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
