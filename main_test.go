package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"accountsd/server"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func configPointingAt(base string) server.Config {
	cfg := server.DefaultConfig()
	cfg.Accounts.AuthURI = base + "/auth/v1"
	cfg.FxAOAuth.OAuthURI = base + "/oauth/v1"
	cfg.FxAOAuth.ProfileURI = base + "/profile/v1"
	cfg.Payments.APIURI = base + "/payments"
	return cfg
}

func TestRunCheckSuccess(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		if !strings.HasSuffix(r.URL.Path, "/__heartbeat__") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	if err := runCheck(context.Background(), configPointingAt(srv.URL), discardLogger(), srv.Client()); err != nil {
		t.Fatalf("runCheck returned error: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("expected 4 probes, got %v", hits)
	}
}

func TestRunCheckReportsFailingUpstreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/payments") {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	err := runCheck(context.Background(), configPointingAt(srv.URL), discardLogger(), srv.Client())
	if err == nil || !strings.Contains(err.Error(), "payments") {
		t.Fatalf("expected payments failure, got %v", err)
	}
	if strings.Contains(err.Error(), "accounts") {
		t.Fatalf("healthy upstream reported as failing: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(server.LoggingConfig{App: "fxa-test", Level: "warn", Format: "json"}, "", &buf)
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["app"] != "fxa-test" || entry["msg"] != "shown" || entry["key"] != "value" {
		t.Fatalf("unexpected log entry %v", entry)
	}
}

func TestNewLoggerOverrideAndText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(server.LoggingConfig{App: "fxa-test", Level: "error", Format: "text"}, "debug", &buf)
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") || !strings.Contains(buf.String(), "app=fxa-test") {
		t.Fatalf("expected text debug output, got %q", buf.String())
	}

	if _, err := newLogger(server.LoggingConfig{Level: "info"}, "trace", &buf); err == nil {
		t.Fatal("expected error for unsupported level")
	}
}

func TestRunConfigInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, server.EnvDev+".yaml")
	input := strings.Join([]string{
		"/accounts", // base url, trailing slash added
		"",          // auth uri
		"",          // oauth uri
		"console-client",
		"fx-fennec-v1",
		"", // channel driver
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := runConfigInit(path, server.EnvDev, strings.NewReader(input), &out, discardLogger()); err != nil {
		t.Fatalf("runConfigInit returned error: %v", err)
	}
	if !strings.Contains(out.String(), "Console OAuth client ID") {
		t.Fatalf("expected prompts on output, got %q", out.String())
	}

	cfg, err := server.LoadConfig(dir, server.EnvDev)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BaseURL != "/accounts/" || cfg.FxAOAuth.ClientID != "console-client" || cfg.Broker.Default != "fx-fennec-v1" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Server.SessionTTL != server.DefaultSessionTTL {
		t.Fatalf("expected session ttl to round-trip, got %s", cfg.Server.SessionTTL)
	}

	if err := runConfigInit(path, server.EnvDev, strings.NewReader(input), io.Discard, discardLogger()); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestRunConfigValidate(t *testing.T) {
	dir := t.TempDir()
	if err := runConfigValidate(dir, server.EnvDev, discardLogger()); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}

	bad := "broker:\n  default: fx-desktop-v9\n"
	if err := os.WriteFile(filepath.Join(dir, server.EnvDev+".yaml"), []byte(bad), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := runConfigValidate(dir, server.EnvDev, discardLogger()); err == nil {
		t.Fatal("expected unknown broker to fail validation")
	}
}

func TestRunSetupRejectsUnknownBroker(t *testing.T) {
	input := "\n\n\n\nfx-desktop-v9\n\n"
	if _, err := runSetup(server.EnvDev, bufio.NewReader(strings.NewReader(input)), io.Discard); err == nil {
		t.Fatal("expected validation error for unknown broker")
	}
}

func TestRunSetupProductionAsksForDomain(t *testing.T) {
	input := strings.Join([]string{"", "", "", "console-client", "", "", "accounts.example.com", "ops@example.com", "s3cret"}, "\n") + "\n"
	cfg, err := runSetup(server.EnvProduction, bufio.NewReader(strings.NewReader(input)), io.Discard)
	if err != nil {
		t.Fatalf("runSetup returned error: %v", err)
	}
	if len(cfg.Server.TLS.Domains) != 1 || cfg.Server.TLS.Domains[0] != "accounts.example.com" || cfg.Server.Session != "s3cret" {
		t.Fatalf("unexpected production config %+v", cfg.Server)
	}
}

func TestNormalizeList(t *testing.T) {
	got := normalizeList(" a:9092, ,b:9092 ", nil)
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected list %v", got)
	}
	if got := normalizeList("  ", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("ACCOUNTSD_TEST_VALUE", "")
	if got := envOr("ACCOUNTSD_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	os.Setenv("ACCOUNTSD_TEST_VALUE", "set")
	if got := envOr("ACCOUNTSD_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("expected env value, got %q", got)
	}
}
