package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"accountsd/broker"
	"accountsd/channel"
	"accountsd/client"
	"accountsd/payments"
)

// AccountsAPI is the accounts server surface the pages use.
type AccountsAPI interface {
	SignIn(ctx context.Context, email, password string) (broker.Account, error)
	SignUp(ctx context.Context, email, password string) (broker.Account, error)
	SignUpResend(ctx context.Context, sessionToken string) error
	RecoveryEmailStatus(ctx context.Context, sessionToken string) (bool, error)
	AccountExists(ctx context.Context, email string) (bool, error)
}

// OAuthAPI grants authorization codes to reliers.
type OAuthAPI interface {
	Authorize(ctx context.Context, sessionToken string, req client.AuthorizationRequest) (string, error)
}

// SubscriptionsAPI creates subscriptions from checkout submissions.
type SubscriptionsAPI interface {
	CreateSubscription(ctx context.Context, req client.SubscriptionRequest) (client.Subscription, error)
}

// Deps lets callers inject collaborators. Nil fields are built from config.
type Deps struct {
	Channel       channel.Channel
	Accounts      AccountsAPI
	OAuth         OAuthAPI
	Subscriptions SubscriptionsAPI
	Console       ConsoleProvider
}

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config        Config
	Logger        *slog.Logger
	Store         *InMemoryStore
	Sessions      *SessionManager
	Reliers       *RelierRegistry
	Catalog       *payments.Catalog
	Metrics       *Metrics
	Channel       channel.Channel
	Accounts      AccountsAPI
	OAuth         OAuthAPI
	Subscriptions SubscriptionsAPI
	Console       ConsoleProvider

	brokers map[string]broker.Broker
}

// NewApp wires together the application state from configuration.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger, deps Deps) (*App, error) {
	store := NewInMemoryStore()
	sessions := NewSessionManager(cfg, store, logger)

	reliers, err := NewRelierRegistry(cfg.RelyingParties)
	if err != nil {
		return nil, err
	}
	catalog, err := payments.NewCatalog(cfg.Payments.Plans)
	if err != nil {
		return nil, fmt.Errorf("payment plans: %w", err)
	}

	metrics := NewMetrics()

	ch := deps.Channel
	if ch == nil {
		ch = channel.Null{}
	}
	metered := channel.NewMetered(ch, metrics.ChannelSends)

	brokers := make(map[string]broker.Broker)
	for _, name := range broker.Names() {
		b, err := broker.New(name, broker.Options{
			Channel:      metered,
			Logger:       logger.With("broker", name),
			Capabilities: cfg.Broker.Capabilities,
		})
		if err != nil {
			return nil, err
		}
		brokers[name] = b
	}

	app := &App{
		Config:        cfg,
		Logger:        logger,
		Store:         store,
		Sessions:      sessions,
		Reliers:       reliers,
		Catalog:       catalog,
		Metrics:       metrics,
		Channel:       metered,
		Accounts:      deps.Accounts,
		OAuth:         deps.OAuth,
		Subscriptions: deps.Subscriptions,
		Console:       deps.Console,
		brokers:       brokers,
	}

	if app.Accounts == nil {
		app.Accounts = client.NewAccounts(client.Config{BaseURL: cfg.Accounts.AuthURI, Timeout: cfg.Accounts.Timeout})
	}
	if app.OAuth == nil {
		app.OAuth = client.NewOAuth(client.Config{BaseURL: cfg.FxAOAuth.OAuthURI, Timeout: cfg.Accounts.Timeout})
	}
	if app.Subscriptions == nil {
		app.Subscriptions = client.NewSubscriptions(client.Config{BaseURL: cfg.Payments.APIURI, Timeout: cfg.Accounts.Timeout})
	}
	if app.Console == nil {
		profile := client.NewProfile(client.Config{BaseURL: cfg.FxAOAuth.ProfileURI, Timeout: cfg.Accounts.Timeout})
		console, err := NewFxAProvider(ctx, cfg.FxAOAuth, profile, logger)
		if err != nil {
			if !cfg.DevMode() {
				return nil, fmt.Errorf("init console provider: %w", err)
			}
			logger.Warn("console provider init failed", "error", err)
		} else {
			app.Console = console
		}
	}

	return app, nil
}

// Broker returns the broker registered under name.
func (a *App) Broker(name string) (broker.Broker, bool) {
	b, ok := a.brokers[name]
	return b, ok
}

// brokerFor picks the broker from ?context=, then the session, then config.
func (a *App) brokerFor(r *http.Request, sess *Session) (broker.Broker, error) {
	name := r.FormValue("context")
	if name == "" && sess != nil {
		name = sess.Context
	}
	if name == "" {
		name = a.Config.Broker.Default
	}
	b, ok := a.brokers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", broker.ErrUnknownBroker, name)
	}
	return b, nil
}

// directiveTarget maps a directive to a page path. No directive, or one
// without an endpoint, lands on settings.
func (a *App) directiveTarget(d *broker.Directive) string {
	if d == nil || d.Endpoint == "" || !d.Endpoint.Valid() {
		return a.path("/settings")
	}
	return a.path("/" + string(d.Endpoint))
}

func (a *App) recordDirective(b broker.Broker, hook string, d *broker.Directive) {
	endpoint := "none"
	switch {
	case d == nil:
	case d.Halt:
		endpoint = "halt"
	case d.Endpoint == "":
		endpoint = "continue"
	default:
		endpoint = string(d.Endpoint)
	}
	a.Metrics.Directives.WithLabelValues(b.Name(), hook, endpoint).Inc()
}

// path prefixes p with base_url.
func (a *App) path(p string) string {
	return strings.TrimSuffix(a.Config.BaseURL, "/") + p
}

func (a *App) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"commit": a.Config.Git.Commit,
		"env":    a.Config.Env,
	})
}

func (a *App) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{})
}

// upstreamStatus maps a platform API error to the status the page returns.
func upstreamStatus(err error) int {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": desc})
}
