package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"accountsd/payments"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsWithoutFiles(t *testing.T) {
	t.Setenv("NODE_ENV", "")
	t.Setenv("CONFIG_FILES", "")

	cfg, err := LoadConfig(t.TempDir(), "")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Env != EnvDev {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.Server.Port != 10137 || cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("unexpected listener defaults: %s", cfg.ListenAddr())
	}
	if cfg.BaseURL != "/" {
		t.Fatalf("expected base_url /, got %q", cfg.BaseURL)
	}
	if cfg.FxAOAuth.Scopes != "profile oauth" {
		t.Fatalf("unexpected default scopes %q", cfg.FxAOAuth.Scopes)
	}
	if cfg.Logging.App != "fxa-oauth-console" {
		t.Fatalf("unexpected logging app %q", cfg.Logging.App)
	}
}

func TestLoadConfigReadsEnvFileThenConfigFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "test.yaml", `server:
  port: 3030
broker:
  default: fx-fennec-v1
`)
	extra := writeConfigFile(t, dir, "local.json", `{"server": {"port": 4040}, "git": {"commit": "abc123"}}`)
	t.Setenv("CONFIG_FILES", extra+","+filepath.Join(dir, "missing.yaml"))

	cfg, err := LoadConfig(dir, EnvTest)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Server.Port != 4040 {
		t.Fatalf("expected CONFIG_FILES to win, got port %d", cfg.Server.Port)
	}
	if cfg.Broker.Default != "fx-fennec-v1" {
		t.Fatalf("expected env file to set broker, got %q", cfg.Broker.Default)
	}
	if cfg.Git.Commit != "abc123" {
		t.Fatalf("expected git commit from json file, got %q", cfg.Git.Commit)
	}
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "dev.yaml", "server:\n  host: 0.0.0.0\n")
	t.Setenv("CONFIG_FILES", "")
	t.Setenv("NODE_ENV", "dev")
	t.Setenv("PORT", "8081")
	t.Setenv("COOKIE_SECRET", "s3cret-value")
	t.Setenv("BASE_URL", "/console/")

	cfg, err := LoadConfig(dir, "")
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ListenAddr() != "0.0.0.0:8081" {
		t.Fatalf("listen addr mismatch, got %q", cfg.ListenAddr())
	}
	if cfg.Server.Session != "s3cret-value" {
		t.Fatalf("session override mismatch, got %q", cfg.Server.Session)
	}
	if cfg.BaseURL != "/console/" {
		t.Fatalf("base url override mismatch, got %q", cfg.BaseURL)
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "dev.yaml", "server:\n  prot: 80\n")
	t.Setenv("CONFIG_FILES", "")

	_, err := LoadConfig(dir, EnvDev)
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "check for typos") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfigRejectsUnknownEnv(t *testing.T) {
	t.Setenv("CONFIG_FILES", "")
	if _, err := LoadConfig(t.TempDir(), "qa"); err == nil {
		t.Fatalf("expected error for unknown env")
	}
}

func TestLoadConfigEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "dev.yaml", "# nothing here\n")
	t.Setenv("CONFIG_FILES", "")

	if _, err := LoadConfig(dir, EnvDev); err != nil {
		t.Fatalf("empty config file should be accepted: %v", err)
	}
}

func TestResolveConfigFilesSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	env := writeConfigFile(t, dir, "staging.json", "{}")
	t.Setenv("CONFIG_FILES", " , "+filepath.Join(dir, "nope.yaml"))

	files := ResolveConfigFiles(dir, EnvStaging)
	if len(files) != 1 || files[0] != env {
		t.Fatalf("unexpected files %v", files)
	}
}

func TestResolveEnvPrecedence(t *testing.T) {
	t.Setenv("NODE_ENV", "staging")
	if got := ResolveEnv("production"); got != "production" {
		t.Fatalf("explicit env should win, got %q", got)
	}
	if got := ResolveEnv(""); got != "staging" {
		t.Fatalf("NODE_ENV should be used, got %q", got)
	}
	t.Setenv("NODE_ENV", "")
	if got := ResolveEnv(""); got != EnvDev {
		t.Fatalf("expected dev fallback, got %q", got)
	}
}

func TestValidateBaseURLTrailingSlash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "/console"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "trailing slash") {
		t.Fatalf("expected trailing slash error, got %v", err)
	}
}

func TestValidatePortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected port range error")
	}
}

func TestValidateProductionRequirements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Env = EnvProduction
	cfg.Server.TLS.Domains = []string{"accounts.example.com"}
	cfg.FxAOAuth.ClientID = "dcdb5ae7add825d2"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "server.session") {
		t.Fatalf("expected default cookie secret to be rejected, got %v", err)
	}

	cfg.Server.Session = "a-real-secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected production config to validate: %v", err)
	}

	cfg.Server.TLS.Domains = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected tls domains to be required in production")
	}
}

func TestValidateURLs(t *testing.T) {
	cases := map[string]func(*Config){
		"fxa_oauth.oauth_uri":   func(c *Config) { c.FxAOAuth.OAuthURI = "not a url" },
		"fxa_oauth.profile_uri": func(c *Config) { c.FxAOAuth.ProfileURI = "ftp://profile" },
		"fxa_oauth.issuer":      func(c *Config) { c.FxAOAuth.Issuer = "issuer" },
		"accounts.auth_uri":     func(c *Config) { c.Accounts.AuthURI = "" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), field) {
				t.Fatalf("expected error naming %s, got %v", field, err)
			}
		})
	}
}

func TestValidateUnknownBroker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker.Default = "fx-desktop-v9"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "broker.default") {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestValidateChannelDrivers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channel.Driver = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	cfg.Channel.Driver = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected redis driver to require addr and topic")
	}
	cfg.Channel.Redis = RedisChannelConfig{Addr: "127.0.0.1:6379", Topic: "fxaccounts"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected redis config to validate: %v", err)
	}

	cfg.Channel.Driver = "kafka"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected kafka driver to require brokers and topic")
	}
}

func TestValidateRelyingParties(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RelyingParties = []RelyingPartyConfig{
		{ClientID: "dcdb5ae7add825d2", Name: "123Done", RedirectURI: "https://123done.example/api/oauth"},
		{ClientID: "dcdb5ae7add825d2", Name: "Copy"},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate relier error, got %v", err)
	}

	cfg.RelyingParties = []RelyingPartyConfig{{ClientID: "x", RedirectURI: "javascript:alert(1)"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsafe redirect error")
	}
}

func TestValidatePaymentPlans(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Payments.Plans = []payments.Plan{{PlanID: "plan_1", ProductID: "prod_1", Currency: "usd", Amount: 500, Interval: "fortnight", IntervalCount: 1}}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "payments.plans") {
		t.Fatalf("expected plan validation error, got %v", err)
	}

	cfg.Payments.Plans[0].Interval = payments.IntervalMonth
	cfg.Payments.ProductRedirectURLs = map[string]string{"prod_1": "//evil.example"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsafe product redirect error")
	}
}

func TestValidateLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "chatty"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected log level error")
	}
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected log format error")
	}
}

func TestSplitAndTrimRemovesEmpty(t *testing.T) {
	in := " a , ,b,, c "
	out := splitAndTrim(in)
	expected := []string{"a", "b", "c"}
	if len(out) != len(expected) {
		t.Fatalf("unexpected length: got %d want %d", len(out), len(expected))
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Fatalf("element %d mismatch: got %q want %q", i, out[i], expected[i])
		}
	}
}

func TestParseFallbacks(t *testing.T) {
	if parseBool("invalid", false) != false {
		t.Fatalf("invalid input should return fallback false")
	}
	if parseBool("YES", false) != true {
		t.Fatalf("expected true for yes")
	}
	if parseInt("eighty", 10137) != 10137 {
		t.Fatalf("invalid port should return fallback")
	}
	if parseDuration("soon", time.Second) != time.Second {
		t.Fatalf("invalid duration should return fallback")
	}
	if parseDuration("2m", time.Second) != 2*time.Minute {
		t.Fatalf("expected 2m")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if !cfg.DevMode() {
		t.Fatalf("default config should be dev mode")
	}
	if cfg.ChannelDriver().Driver != "null" {
		t.Fatalf("default channel driver should be null")
	}
}
