package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"gopkg.in/yaml.v3"

	"accountsd/channel"
	"accountsd/server"
)

const sweepInterval = time.Minute

func main() {
	configDir := flag.String("config", envOr("CONFIG_DIR", "./config"), "Directory holding <env>.yaml config files")
	env := flag.String("env", "", "Environment name (dev, test, staging, production); defaults to NODE_ENV")
	configCmd := flag.String("config-cmd", "", "Config command: 'init' or 'validate'")
	logLevel := flag.String("log-level", "", "Logging level override (debug, info, warn, error)")
	flag.StringVar(logLevel, "l", "", "Alias for -log-level")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	resolvedEnv := server.ResolveEnv(*env)

	if *configCmd != "" {
		path := filepath.Join(*configDir, resolvedEnv+".yaml")
		switch *configCmd {
		case "init":
			if err := runConfigInit(path, resolvedEnv, os.Stdin, os.Stdout, bootLogger); err != nil {
				log.Fatalf("config init failed: %v", err)
			}
			bootLogger.Info("configuration initialized successfully", "path", path)
			return
		case "validate":
			if err := runConfigValidate(*configDir, resolvedEnv, bootLogger); err != nil {
				log.Fatalf("config validation failed: %v", err)
			}
			bootLogger.Info("configuration is valid", "dir", *configDir, "env", resolvedEnv)
			return
		default:
			log.Fatalf("unknown config command %q. Use 'init' or 'validate'", *configCmd)
		}
	}

	cfg, err := server.LoadConfig(*configDir, resolvedEnv)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := newLogger(cfg.Logging, *logLevel, os.Stdout)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if args := flag.Args(); len(args) > 0 && args[0] == "check" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runCheck(ctx, cfg, logger, nil); err != nil {
			logger.Error("upstream check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("upstream check succeeded")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch, closeChannel, err := channel.New(ctx, cfg.ChannelDriver(), logger)
	if err != nil {
		log.Fatalf("init channel: %v", err)
	}
	defer func() {
		if err := closeChannel(); err != nil {
			logger.Warn("channel close failed", "error", err)
		}
	}()

	application, err := server.NewApp(ctx, cfg, logger, server.Deps{Channel: ch})
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	go application.Store.RunSweeper(ctx, sweepInterval, logger)

	handler := application.Routes()
	var shutdownFns []func(context.Context) error

	if cfg.DevMode() {
		srv := &http.Server{
			Addr:         cfg.ListenAddr(),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		shutdownFns = append(shutdownFns, srv.Shutdown)
		logger.Info("server listening", "mode", cfg.Env, "addr", srv.Addr, "base_url", cfg.BaseURL)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "error", err)
			}
		}()
	} else {
		m := &autocert.Manager{
			Cache:      autocert.DirCache(filepath.Join(cfg.Server.SecretsPath, "tls")),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Server.TLS.Domains...),
			Email:      cfg.Server.TLS.Email,
		}

		httpRedirect := &http.Server{
			Addr:              cfg.Server.TLS.HTTPListenAddr,
			Handler:           m.HTTPHandler(http.HandlerFunc(redirectToHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		shutdownFns = append(shutdownFns, httpRedirect.Shutdown)
		go func() {
			if err := httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http redirect error", "error", err)
			}
		}()

		httpsSrv := &http.Server{
			Addr:    cfg.Server.TLS.HTTPSListenAddr,
			Handler: handler,
			TLSConfig: &tls.Config{
				GetCertificate: m.GetCertificate,
				MinVersion:     tls.VersionTLS12,
			},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		shutdownFns = append(shutdownFns, httpsSrv.Shutdown)
		logger.Info("server listening", "mode", cfg.Env, "addr", httpsSrv.Addr, "domains", cfg.Server.TLS.Domains)
		go func() {
			if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("https server error", "error", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, fn := range shutdownFns {
		_ = fn(shutdownCtx)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.RequestURI()
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// newLogger builds the process logger from config. A non-empty levelOverride
// wins over logging.level.
func newLogger(cfg server.LoggingConfig, levelOverride string, w io.Writer) (*slog.Logger, error) {
	levelName := cfg.Level
	if levelOverride != "" {
		levelName = levelOverride
	}
	level, err := server.ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("app", cfg.App), nil
}

// runCheck probes the heartbeat of every upstream the pages depend on.
func runCheck(ctx context.Context, cfg server.Config, logger *slog.Logger, httpClient *http.Client) error {
	client := httpClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	upstreams := []struct{ name, base string }{
		{"accounts", cfg.Accounts.AuthURI},
		{"oauth", cfg.FxAOAuth.OAuthURI},
		{"profile", cfg.FxAOAuth.ProfileURI},
		{"payments", cfg.Payments.APIURI},
	}

	var failed []string
	for _, u := range upstreams {
		target := strings.TrimSuffix(u.base, "/") + "/__heartbeat__"
		if err := probe(ctx, client, target); err != nil {
			logger.Error("upstream unreachable", "upstream", u.name, "url", target, "error", err)
			failed = append(failed, u.name)
			continue
		}
		logger.Info("upstream reachable", "upstream", u.name, "url", target)
	}
	if len(failed) > 0 {
		return fmt.Errorf("unreachable upstreams: %s", strings.Join(failed, ", "))
	}
	return nil
}

func probe(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("received status %d", resp.StatusCode)
	}
	return nil
}

// runConfigValidate loads the configuration and builds the application
// against a recording channel, so nothing is published.
func runConfigValidate(dir, env string, logger *slog.Logger) error {
	cfg, err := server.LoadConfig(dir, env)
	if err != nil {
		return err
	}
	if _, err := server.NewApp(context.Background(), cfg, logger, server.Deps{Channel: channel.NewRecorder()}); err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	return nil
}

func runConfigInit(path, env string, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s. Remove it first or use a different path", path)
	}
	cfg, err := runSetup(env, bufio.NewReader(in), out)
	if err != nil {
		return err
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return err
	}
	logger.Info("configuration created", "path", path)
	return nil
}

// runSetup asks for the handful of values that differ between deployments.
func runSetup(env string, reader *bufio.Reader, out io.Writer) (server.Config, error) {
	fmt.Fprintf(out, "Creating %s configuration. Press Enter to accept defaults.\n", env)

	cfg := server.DefaultConfig()
	cfg.Env = env

	cfg.BaseURL = ask(reader, out, "Base URL path for the pages", cfg.BaseURL)
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	cfg.Accounts.AuthURI = ask(reader, out, "Accounts auth server URI", cfg.Accounts.AuthURI)
	cfg.FxAOAuth.OAuthURI = ask(reader, out, "OAuth server URI", cfg.FxAOAuth.OAuthURI)
	cfg.FxAOAuth.ClientID = ask(reader, out, "Console OAuth client ID", cfg.FxAOAuth.ClientID)
	cfg.Broker.Default = ask(reader, out, "Default broker context", cfg.Broker.Default)
	cfg.Channel.Driver = ask(reader, out, "Channel driver (null, redis, kafka)", cfg.Channel.Driver)
	switch cfg.Channel.Driver {
	case channel.DriverRedis:
		cfg.Channel.Redis.Addr = ask(reader, out, "Redis address", "127.0.0.1:6379")
		cfg.Channel.Redis.Topic = ask(reader, out, "Redis channel", "fxaccounts")
	case channel.DriverKafka:
		cfg.Channel.Kafka.Brokers = normalizeList(ask(reader, out, "Kafka brokers (comma separated)", "127.0.0.1:9092"), nil)
		cfg.Channel.Kafka.Topic = ask(reader, out, "Kafka topic", "fxaccounts")
	}

	if !cfg.DevMode() {
		domain := askRequired(reader, out, "Public domain (e.g. accounts.example.com)")
		cfg.Server.TLS.Domains = []string{domain}
		cfg.Server.TLS.Email = ask(reader, out, "ACME contact email", cfg.Server.TLS.Email)
		cfg.Server.Session = askRequired(reader, out, "Cookie signing secret")
	}

	if err := cfg.Validate(); err != nil {
		return server.Config{}, err
	}
	return cfg, nil
}

func ask(reader *bufio.Reader, out io.Writer, prompt, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(out, "%s: ", prompt)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return strings.TrimSpace(def)
	}
	return input
}

func askRequired(reader *bufio.Reader, out io.Writer, prompt string) string {
	for {
		fmt.Fprintf(out, "%s: ", prompt)
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input != "" {
			return input
		}
		if err != nil {
			return ""
		}
		fmt.Fprintln(out, "This value is required. Please enter a value.")
	}
}

func normalizeList(input string, fallback []string) []string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func writeConfigFile(path string, cfg server.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
