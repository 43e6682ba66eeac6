package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"accountsd/broker"
	"accountsd/channel"
	"accountsd/payments"
)

// Environments accepted for env / NODE_ENV.
const (
	EnvDev        = "dev"
	EnvTest       = "test"
	EnvStaging    = "staging"
	EnvProduction = "production"
)

const (
	DefaultSessionTTL    = 12 * time.Hour
	DefaultCookieSecret  = "cookie_secret"
	DefaultAccountsTTL   = 15 * time.Second
	DefaultMetricsPath   = "/metrics"
	DefaultLoggingApp    = "fxa-oauth-console"
	configFilesEnv       = "CONFIG_FILES"
	nodeEnvVar           = "NODE_ENV"
	defaultServerPortNum = 10137
)

var environments = []string{EnvDev, EnvTest, EnvStaging, EnvProduction}

// Config captures the full application configuration loaded from YAML and environment variables.
type Config struct {
	Env            string               `yaml:"env"`
	Git            GitConfig            `yaml:"git"`
	Server         ServerConfig         `yaml:"server"`
	BaseURL        string               `yaml:"base_url"`
	FxAOAuth       FxAOAuthConfig       `yaml:"fxa_oauth"`
	Accounts       AccountsConfig       `yaml:"accounts"`
	Broker         BrokerConfig         `yaml:"broker"`
	Channel        ChannelConfig        `yaml:"channel"`
	RelyingParties []RelyingPartyConfig `yaml:"relying_parties"`
	Payments       PaymentsConfig       `yaml:"payments"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Logging        LoggingConfig        `yaml:"logging"`
}

type GitConfig struct {
	Commit string `yaml:"commit"`
}

// ServerConfig controls listener, TLS, and cookie concerns.
type ServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Session     string        `yaml:"session"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	SecretsPath string        `yaml:"secrets_path"`
	TLS         TLSConfig     `yaml:"tls"`
}

// TLSConfig defines autocert behaviour outside dev and test.
type TLSConfig struct {
	Domains         []string `yaml:"domains"`
	Email           string   `yaml:"email"`
	HTTPListenAddr  string   `yaml:"http_listen_addr"`
	HTTPSListenAddr string   `yaml:"https_listen_addr"`
}

// FxAOAuthConfig describes the console's own OAuth client.
type FxAOAuthConfig struct {
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	OAuthURI         string `yaml:"oauth_uri"`
	OAuthInternalURI string `yaml:"oauth_internal_uri"`
	RedirectURI      string `yaml:"redirect_uri"`
	ProfileURI       string `yaml:"profile_uri"`
	Scopes           string `yaml:"scopes"`
	Issuer           string `yaml:"issuer"`
}

type AccountsConfig struct {
	AuthURI string        `yaml:"auth_uri"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrokerConfig picks the default broker and overrides its capabilities.
type BrokerConfig struct {
	Default      string          `yaml:"default"`
	Capabilities map[string]bool `yaml:"capabilities"`
}

// ChannelConfig selects the notification sink brokers send to.
type ChannelConfig struct {
	Driver string             `yaml:"driver"`
	Redis  RedisChannelConfig `yaml:"redis"`
	Kafka  KafkaChannelConfig `yaml:"kafka"`
}

type RedisChannelConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Topic    string `yaml:"topic"`
}

type KafkaChannelConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RelyingPartyConfig registers an OAuth relier that may use the sign-in view.
type RelyingPartyConfig struct {
	ClientID    string `yaml:"client_id"`
	Name        string `yaml:"name"`
	RedirectURI string `yaml:"redirect_uri"`
}

type PaymentsConfig struct {
	APIURI              string            `yaml:"api_uri"`
	RequireConfirm      bool              `yaml:"require_confirm"`
	DefaultRedirectURL  string            `yaml:"default_redirect_url"`
	ProductRedirectURLs map[string]string `yaml:"product_redirect_urls"`
	Plans               []payments.Plan   `yaml:"plans"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	App    string `yaml:"app"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DevMode reports whether the service runs without TLS and with relaxed cookies.
func (c Config) DevMode() bool {
	return c.Env == EnvDev || c.Env == EnvTest
}

// ListenAddr is the plain HTTP address used in dev and test.
func (c Config) ListenAddr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ChannelDriver converts the channel section for channel.New.
func (c Config) ChannelDriver() channel.Config {
	return channel.Config{
		Driver: c.Channel.Driver,
		Redis: channel.RedisConfig{
			Addr:     c.Channel.Redis.Addr,
			Password: c.Channel.Redis.Password,
			DB:       c.Channel.Redis.DB,
			Topic:    c.Channel.Redis.Topic,
		},
		Kafka: channel.KafkaConfig{
			Brokers: c.Channel.Kafka.Brokers,
			Topic:   c.Channel.Kafka.Topic,
		},
	}
}

// ResolveEnv picks the environment: the explicit value, then NODE_ENV, then dev.
func ResolveEnv(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := os.LookupEnv(nodeEnvVar); ok && v != "" {
		return v
	}
	return EnvDev
}

// ResolveConfigFiles lists the files LoadConfig reads, in order: the
// environment file in dir followed by CONFIG_FILES. Missing files are skipped.
func ResolveConfigFiles(dir, env string) []string {
	var candidates []string
	if dir != "" {
		for _, ext := range []string{".yaml", ".yml", ".json"} {
			candidates = append(candidates, filepath.Join(dir, env+ext))
		}
	}
	candidates = append(candidates, splitAndTrim(os.Getenv(configFilesEnv))...)

	files := make([]string, 0, len(candidates))
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	return files
}

// LoadConfig reads the config files for env and merges environment overrides.
func LoadConfig(dir, env string) (Config, error) {
	env = ResolveEnv(env)
	cfg := defaultConfig()

	for _, path := range ResolveConfigFiles(dir, env) {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.Env = env

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(stripYAMLComments(b)))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			slog.Error("Configuration contains unknown keys", "error", err, "file", path)
			return fmt.Errorf("invalid config %s: %w (check for typos or deprecated fields)", path, err)
		}
		slog.Error("Failed to parse configuration", "error", err, "file", path)
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Env: EnvDev,
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        defaultServerPortNum,
			Session:     DefaultCookieSecret,
			SessionTTL:  DefaultSessionTTL,
			SecretsPath: ".secrets",
			TLS: TLSConfig{
				HTTPListenAddr:  ":80",
				HTTPSListenAddr: ":443",
			},
		},
		BaseURL: "/",
		FxAOAuth: FxAOAuthConfig{
			OAuthURI:         "https://oauth-latest.dev.lcip.org/v1",
			OAuthInternalURI: "https://127.0.0.1:9011/v1",
			RedirectURI:      "https://127.0.0.1:10137/oauth/redirect",
			ProfileURI:       "https://latest.dev.lcip.org/profile/v1",
			Scopes:           "profile oauth",
		},
		Accounts: AccountsConfig{
			AuthURI: "https://latest.dev.lcip.org/auth/v1",
			Timeout: DefaultAccountsTTL,
		},
		Broker: BrokerConfig{
			Default: broker.WebName,
		},
		Channel: ChannelConfig{
			Driver: channel.DriverNull,
		},
		Payments: PaymentsConfig{
			APIURI:             "https://latest.dev.lcip.org/auth",
			RequireConfirm:     true,
			DefaultRedirectURL: payments.DefaultProductRedirectURL,
		},
		Metrics: MetricsConfig{
			Path: DefaultMetricsPath,
		},
		Logging: LoggingConfig{
			App:    DefaultLoggingApp,
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"HOST":                    func(v string) { cfg.Server.Host = v },
		"PORT":                    func(v string) { cfg.Server.Port = parseInt(v, cfg.Server.Port) },
		"COOKIE_SECRET":           func(v string) { cfg.Server.Session = v },
		"BASE_URL":                func(v string) { cfg.BaseURL = v },
		"GIT_COMMIT":              func(v string) { cfg.Git.Commit = v },
		"FXA_OAUTH_CLIENT_ID":     func(v string) { cfg.FxAOAuth.ClientID = v },
		"FXA_OAUTH_CLIENT_SECRET": func(v string) { cfg.FxAOAuth.ClientSecret = v },
		"ACCOUNTS_AUTH_URI":       func(v string) { cfg.Accounts.AuthURI = v },
		"ACCOUNTS_TIMEOUT":        func(v string) { cfg.Accounts.Timeout = parseDuration(v, cfg.Accounts.Timeout) },
		"BROKER_DEFAULT":          func(v string) { cfg.Broker.Default = v },
		"CHANNEL_DRIVER":          func(v string) { cfg.Channel.Driver = v },
		"CHANNEL_REDIS_ADDR":      func(v string) { cfg.Channel.Redis.Addr = v },
		"CHANNEL_KAFKA_BROKERS":   func(v string) { cfg.Channel.Kafka.Brokers = splitAndTrim(v) },
		"METRICS_ENABLED":         func(v string) { cfg.Metrics.Enabled = parseBool(v, cfg.Metrics.Enabled) },
		"LOG_LEVEL":               func(v string) { cfg.Logging.Level = v },
		"TLS_DOMAINS":             func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(val string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks on the config.
func (c Config) Validate() error {
	if !slices.Contains(environments, c.Env) {
		slog.Error("Invalid configuration value", "field", "env", "value", c.Env, "valid_values", environments)
		return fmt.Errorf("env must be one of %s, got: %q", strings.Join(environments, ", "), c.Env)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		slog.Error("Invalid configuration value", "field", "server.port", "value", c.Server.Port, "reason", "must be a port number")
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", c.Server.Port)
	}

	if c.Server.Session == "" {
		slog.Error("Missing required configuration", "field", "server.session")
		return errors.New("server.session is required")
	}
	if !c.DevMode() && c.Server.Session == DefaultCookieSecret {
		slog.Error("Default cookie secret outside dev", "field", "server.session", "env", c.Env)
		return fmt.Errorf("server.session must be changed from the default in %s", c.Env)
	}
	if c.Server.SessionTTL <= 0 {
		slog.Error("Invalid configuration value", "field", "server.session_ttl", "value", c.Server.SessionTTL)
		return errors.New("server.session_ttl must be positive")
	}

	if !c.DevMode() && len(c.Server.TLS.Domains) == 0 {
		slog.Error("Missing required configuration for production mode", "field", "server.tls.domains", "env", c.Env)
		return fmt.Errorf("server.tls.domains must be provided in %s", c.Env)
	}

	if !strings.HasSuffix(c.BaseURL, "/") {
		slog.Error("Invalid configuration value", "field", "base_url", "value", c.BaseURL, "reason", "must end with a trailing slash")
		return fmt.Errorf("base_url must end with a trailing slash, got: %q", c.BaseURL)
	}

	urls := []struct {
		field, value string
		required     bool
	}{
		{"fxa_oauth.oauth_uri", c.FxAOAuth.OAuthURI, true},
		{"fxa_oauth.oauth_internal_uri", c.FxAOAuth.OAuthInternalURI, true},
		{"fxa_oauth.profile_uri", c.FxAOAuth.ProfileURI, true},
		{"fxa_oauth.issuer", c.FxAOAuth.Issuer, false},
		{"accounts.auth_uri", c.Accounts.AuthURI, true},
		{"payments.api_uri", c.Payments.APIURI, true},
		{"payments.default_redirect_url", c.Payments.DefaultRedirectURL, true},
	}
	for _, u := range urls {
		if u.value == "" && !u.required {
			continue
		}
		if !isHTTPURL(u.value) {
			slog.Error("Invalid URL", "field", u.field, "value", u.value, "reason", "must be a valid HTTP(S) URL")
			return fmt.Errorf("%s must be a valid http(s) URL, got: %q", u.field, u.value)
		}
	}

	if !c.DevMode() && c.FxAOAuth.ClientID == "" {
		slog.Error("Missing required configuration", "field", "fxa_oauth.client_id", "env", c.Env)
		return fmt.Errorf("fxa_oauth.client_id is required in %s", c.Env)
	}

	if !broker.Known(c.Broker.Default) {
		slog.Error("Unknown broker", "field", "broker.default", "value", c.Broker.Default, "available", broker.Names())
		return fmt.Errorf("broker.default %q is not a registered broker (available: %s)", c.Broker.Default, strings.Join(broker.Names(), ", "))
	}

	switch c.Channel.Driver {
	case "", channel.DriverNull:
	case channel.DriverRedis:
		if c.Channel.Redis.Addr == "" || c.Channel.Redis.Topic == "" {
			slog.Error("Incomplete channel configuration", "driver", c.Channel.Driver)
			return errors.New("channel.redis.addr and channel.redis.topic are required for the redis driver")
		}
	case channel.DriverKafka:
		if len(c.Channel.Kafka.Brokers) == 0 || c.Channel.Kafka.Topic == "" {
			slog.Error("Incomplete channel configuration", "driver", c.Channel.Driver)
			return errors.New("channel.kafka.brokers and channel.kafka.topic are required for the kafka driver")
		}
	default:
		slog.Error("Unknown channel driver", "field", "channel.driver", "value", c.Channel.Driver)
		return fmt.Errorf("channel.driver must be null, redis or kafka, got: %q", c.Channel.Driver)
	}

	seen := make(map[string]bool, len(c.RelyingParties))
	for i, rp := range c.RelyingParties {
		if rp.ClientID == "" {
			slog.Error("Relying party missing client_id", "index", i)
			return fmt.Errorf("relying_parties[%d]: client_id is required", i)
		}
		if seen[rp.ClientID] {
			slog.Error("Duplicate relying party", "client_id", rp.ClientID)
			return fmt.Errorf("relying_parties[%d]: duplicate client_id %s", i, rp.ClientID)
		}
		seen[rp.ClientID] = true
		if rp.RedirectURI != "" && !isSafeRedirectURI(rp.RedirectURI) {
			slog.Error("Invalid redirect URI", "client_id", rp.ClientID, "redirect_uri", rp.RedirectURI)
			return fmt.Errorf("relying_parties[%d] (%s): redirect_uri is not a safe http(s) URL: %s", i, rp.ClientID, rp.RedirectURI)
		}
	}

	for product, target := range c.Payments.ProductRedirectURLs {
		if !isSafeRedirectURI(target) {
			slog.Error("Invalid product redirect", "product_id", product, "url", target)
			return fmt.Errorf("payments.product_redirect_urls[%s] is not a safe http(s) URL: %s", product, target)
		}
	}
	if _, err := payments.NewCatalog(c.Payments.Plans); err != nil {
		slog.Error("Invalid payment plans", "error", err)
		return fmt.Errorf("payments.plans: %w", err)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		slog.Error("Invalid configuration value", "field", "metrics.path", "value", c.Metrics.Path)
		return fmt.Errorf("metrics.path must start with /, got: %q", c.Metrics.Path)
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		slog.Error("Invalid configuration value", "field", "logging.level", "value", c.Logging.Level)
		return err
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		slog.Error("Invalid configuration value", "field", "logging.format", "value", c.Logging.Format, "valid_values", []string{"json", "text"})
		return fmt.Errorf("logging.format must be json or text, got: %q", c.Logging.Format)
	}

	return nil
}

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
