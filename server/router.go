package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"accountsd/broker"
)

const hstsMaxAge = 31536000

// Routes constructs the HTTP router. Operational endpoints sit at the root;
// pages are mounted under base_url.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger, a.Metrics.HTTPRequests))
	r.Use(RecoveryMiddleware(a.Logger))
	if a.Config.DevMode() {
		r.Use(SecurityHeadersMiddleware(0))
	} else {
		r.Use(SecurityHeadersMiddleware(hstsMaxAge))
	}

	r.Get("/__version__", a.handleVersion)
	r.Get("/__heartbeat__", a.handleHeartbeat)
	if a.Config.Metrics.Enabled {
		r.Handle(a.Config.Metrics.Path, a.Metrics.Handler())
	}

	if prefix := strings.TrimSuffix(a.Config.BaseURL, "/"); prefix != "" {
		r.Route(prefix, a.pageRoutes)
	} else {
		a.pageRoutes(r)
	}
	return r
}

func (a *App) pageRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, a.path("/settings"), http.StatusFound)
	})

	r.Get("/oauth/signin", a.handleOAuthSignInPage)
	r.Post("/oauth/signin", a.handleOAuthSignIn)
	r.Post("/oauth/signin/reset_password", a.handleOAuthResetPassword)
	r.Get("/oauth/signup", a.handleOAuthSignUpPage)
	r.Post("/oauth/signup", a.handleOAuthSignUp)

	r.Get("/oauth/login", a.handleConsoleLogin)
	r.Get("/oauth/redirect", a.handleConsoleRedirect)
	r.Get("/oauth/logout", a.handleConsoleLogout)
	r.Get("/console/profile", a.handleConsoleProfile)

	r.Get("/signin", a.handleSignInPage)
	r.Post("/signin", a.handleSignIn)
	r.Get("/force_auth", a.handleForceAuthPage)
	r.Post("/force_auth", a.handleForceAuth)
	r.Get("/signup", a.handleSignUpPage)
	r.Post("/signup", a.handleSignUp)
	r.Get("/confirm", a.handleConfirm)
	r.Get("/confirm/status", a.handleConfirmStatus)
	r.Post("/sync_preferences", a.handleSyncPreferences)
	r.Get("/settings", a.handleSettings)
	r.Get("/reset_password", a.handleResetPasswordPage)
	r.Get("/"+string(broker.EndpointChooseWhatToSync), a.handleChooseWhatToSyncPage)
	r.Post("/"+string(broker.EndpointChooseWhatToSync), a.handleChooseWhatToSync)
	for _, endpoint := range broker.Endpoints() {
		if endpoint == broker.EndpointChooseWhatToSync {
			continue
		}
		r.Get("/"+string(endpoint), a.handleComplete(endpoint))
	}

	r.Get("/subscriptions/plans/{planID}/checkout", a.handleCheckoutPage)
	r.Post("/subscriptions/plans/{planID}/checkout", a.handleCheckoutSubmit)
	r.Get("/subscriptions/products/{productID}/success", a.handleSubscriptionSuccess)
}
