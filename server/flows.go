package server

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"slices"
	"strings"

	"accountsd/broker"
	"accountsd/client"
)

type signInPage struct {
	Action    string
	SignUpURL string
	Email     string
	Error     string
}

type signUpPage struct {
	Action           string
	SignInURL        string
	Email            string
	Error            string
	Relier           *Relier
	ChooseWhatToSync bool
}

type confirmPage struct {
	Email     string
	Halted    bool
	StatusURL string
}

type completePage struct {
	Endpoint string
	Title    string
	Message  string
}

type confirmStatus struct {
	Verified bool   `json:"verified"`
	Endpoint string `json:"endpoint,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

var completePages = map[broker.Endpoint]completePage{
	broker.EndpointForceAuthComplete: {Title: "Signed in", Message: "You are now signed in. You can close this tab."},
	broker.EndpointSignInComplete:    {Title: "Sign-in confirmed", Message: "Firefox is now connected to your account."},
	broker.EndpointSignUpComplete:    {Title: "Account verified", Message: "Your account is ready. Firefox will start syncing shortly."},
}

type syncEngine struct {
	Name  string
	Label string
}

// syncEngines are offered on the choose-what-to-sync page, all on by default.
var syncEngines = []syncEngine{
	{Name: "bookmarks", Label: "Bookmarks"},
	{Name: "history", Label: "History"},
	{Name: "passwords", Label: "Logins"},
	{Name: "tabs", Label: "Open tabs"},
	{Name: "addons", Label: "Add-ons"},
	{Name: "prefs", Label: "Preferences"},
}

type chooseWhatToSyncPage struct {
	Action  string
	Email   string
	Engines []syncEngine
}

// withContext appends the broker context to a page path.
func withContext(path, ctxName string) string {
	if ctxName == "" {
		return path
	}
	return path + "?" + url.Values{"context": {ctxName}}.Encode()
}

func (a *App) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	a.renderSignIn(w, r, http.StatusOK, "/signin", r.URL.Query().Get("email"), "")
}

func (a *App) handleForceAuthPage(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if !validEmail(email) {
		a.renderError(w, http.StatusBadRequest, "force_auth requires a valid email")
		return
	}
	a.renderSignIn(w, r, http.StatusOK, "/force_auth", email, "")
}

func (a *App) renderSignIn(w http.ResponseWriter, r *http.Request, status int, action, email, message string) {
	ctxName := r.FormValue("context")
	a.render(w, status, "signin", signInPage{
		Action:    withContext(a.path(action), ctxName),
		SignUpURL: withContext(a.path("/signup"), ctxName),
		Email:     email,
		Error:     message,
	})
}

func (a *App) handleSignIn(w http.ResponseWriter, r *http.Request) {
	a.authenticate(w, r, "/signin", "after_sign_in", func(b broker.Broker) hook {
		return b.AfterSignIn
	})
}

func (a *App) handleForceAuth(w http.ResponseWriter, r *http.Request) {
	a.authenticate(w, r, "/force_auth", "after_force_auth", func(b broker.Broker) hook {
		return b.AfterForceAuth
	})
}

// authenticate signs the user in and hands the account to the selected broker hook.
func (a *App) authenticate(w http.ResponseWriter, r *http.Request, action, hookName string, pick func(broker.Broker) hook) {
	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session create failed", "error", err)
		a.renderError(w, http.StatusInternalServerError, "Unable to start a session")
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		a.renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if !validEmail(email) || password == "" {
		a.renderSignIn(w, r, http.StatusBadRequest, action, email, "Valid email and password required")
		return
	}

	account, err := a.Accounts.SignIn(r.Context(), email, password)
	if err != nil {
		a.Logger.Warn("sign in failed", "error", err, "broker", b.Name())
		status := upstreamStatus(err)
		msg := "Unable to sign in right now"
		if status == http.StatusUnauthorized {
			msg = "Incorrect email or password"
		}
		a.renderSignIn(w, r, status, action, email, msg)
		return
	}

	sess.Account = &account
	sess.Context = b.Name()
	a.Sessions.Save(sess)

	if !account.Verified {
		if err := a.Accounts.SignUpResend(r.Context(), account.SessionToken); err != nil {
			a.Logger.Warn("resend code failed", "error", err)
		}
		http.Redirect(w, r, withContext(a.path("/confirm"), b.Name()), http.StatusFound)
		return
	}

	d, err := pick(b)(r.Context(), account)
	if err != nil {
		a.Logger.Error("broker hook failed", "hook", hookName, "broker", b.Name(), "error", err)
		a.renderError(w, http.StatusBadGateway, "Unable to notify the browser")
		return
	}
	a.recordDirective(b, hookName, d)
	http.Redirect(w, r, a.directiveTarget(d), http.StatusFound)
}

func (a *App) handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	b, err := a.brokerFor(r, sess)
	if err != nil {
		a.renderError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.renderSignUp(w, r, b, http.StatusOK, "", "")
}

func (a *App) renderSignUp(w http.ResponseWriter, r *http.Request, b broker.Broker, status int, email, message string) {
	ctxName := r.FormValue("context")
	a.render(w, status, "signup", signUpPage{
		Action:           withContext(a.path("/signup"), ctxName),
		SignInURL:        withContext(a.path("/signin"), ctxName),
		Email:            email,
		Error:            message,
		ChooseWhatToSync: b.HasCapability(broker.CapabilityChooseWhatToSyncCheckbox),
	})
}

func (a *App) handleSignUp(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session create failed", "error", err)
		a.renderError(w, http.StatusInternalServerError, "Unable to start a session")
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		a.renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if !validEmail(email) || len(password) < minPasswordLength {
		a.renderSignUp(w, r, b, http.StatusBadRequest, email, "Valid email and a password of at least 8 characters required")
		return
	}

	account, err := a.Accounts.SignUp(r.Context(), email, password)
	if err != nil {
		a.Logger.Warn("sign up failed", "error", err, "broker", b.Name())
		a.renderSignUp(w, r, b, upstreamStatus(err), email, "Unable to create the account")
		return
	}
	account.CustomizeSync = b.HasCapability(broker.CapabilityChooseWhatToSyncCheckbox) &&
		r.PostFormValue("customize_sync") == "true"

	sess.Account = &account
	sess.Context = b.Name()
	a.Sessions.Save(sess)

	d, err := b.AfterSignUp(r.Context(), account)
	if err != nil {
		a.Logger.Error("broker hook failed", "hook", "after_sign_up", "broker", b.Name(), "error", err)
		a.renderError(w, http.StatusBadGateway, "Unable to notify the browser")
		return
	}
	a.recordDirective(b, "after_sign_up", d)
	if d == nil {
		http.Redirect(w, r, withContext(a.path("/confirm"), b.Name()), http.StatusFound)
		return
	}
	http.Redirect(w, r, a.directiveTarget(d), http.StatusFound)
}

func (a *App) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		http.Redirect(w, r, a.path("/signup"), http.StatusFound)
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		a.renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := b.BeforeSignUpConfirmationPoll(r.Context(), *sess.Account)
	if err != nil {
		a.Logger.Error("broker hook failed", "hook", "before_sign_up_confirmation_poll", "broker", b.Name(), "error", err)
		a.renderError(w, http.StatusBadGateway, "Unable to notify the browser")
		return
	}
	a.recordDirective(b, "before_sign_up_confirmation_poll", d)

	a.render(w, http.StatusOK, "confirm", confirmPage{
		Email:     sess.Account.Email,
		Halted:    d != nil && d.Halt,
		StatusURL: withContext(a.path("/confirm/status"), b.Name()),
	})
}

func (a *App) handleConfirmStatus(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		jsonError(w, http.StatusUnauthorized, "unauthorized", "no signed-in account")
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	verified, err := a.Accounts.RecoveryEmailStatus(r.Context(), sess.Account.SessionToken)
	if err != nil {
		a.Logger.Warn("recovery email status failed", "error", err)
		jsonError(w, upstreamStatus(err), "upstream_error", "unable to check verification status")
		return
	}
	if !verified {
		writeJSON(w, http.StatusOK, confirmStatus{Verified: false})
		return
	}

	account := *sess.Account
	account.Verified = true
	sess.Account = &account
	a.Sessions.Save(sess)

	// OAuth reliers detoured through confirmation resume their flow instead.
	if sess.OAuth != nil {
		redirect, err := a.finishOAuthFlow(r, sess)
		if err != nil {
			jsonError(w, upstreamStatus(err), "upstream_error", "unable to complete authorization")
			return
		}
		writeJSON(w, http.StatusOK, confirmStatus{Verified: true, Redirect: redirect})
		return
	}

	d, err := b.AfterSignUpConfirmationPoll(r.Context(), *sess.Account)
	if err != nil {
		a.Logger.Error("broker hook failed", "hook", "after_sign_up_confirmation_poll", "broker", b.Name(), "error", err)
		jsonError(w, http.StatusBadGateway, "channel_error", "unable to notify the browser")
		return
	}
	a.recordDirective(b, "after_sign_up_confirmation_poll", d)
	writeJSON(w, http.StatusOK, confirmStatus{Verified: true, Endpoint: a.directiveTarget(d)})
}

func (a *App) handleChooseWhatToSyncPage(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		http.Redirect(w, r, a.path("/signup"), http.StatusFound)
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		a.renderError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.render(w, http.StatusOK, "choose_what_to_sync", chooseWhatToSyncPage{
		Action:  withContext(a.path("/"+string(broker.EndpointChooseWhatToSync)), b.Name()),
		Email:   sess.Account.Email,
		Engines: syncEngines,
	})
}

// handleChooseWhatToSync records the sync choice on the account and moves on
// to the confirmation poll.
func (a *App) handleChooseWhatToSync(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		http.Redirect(w, r, a.path("/signup"), http.StatusFound)
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		a.renderError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.ParseForm(); err != nil {
		a.renderError(w, http.StatusBadRequest, "Malformed form")
		return
	}

	declined := declinedEngines(r.PostForm["engines"])
	account := *sess.Account
	account.CustomizeSync = len(declined) > 0
	sess.Account = &account
	a.Sessions.Save(sess)

	a.Logger.Debug("sync engines chosen", "broker", b.Name(), "declined", declined)
	http.Redirect(w, r, withContext(a.path("/confirm"), b.Name()), http.StatusFound)
}

// declinedEngines lists the offered engines missing from selected.
func declinedEngines(selected []string) []string {
	var declined []string
	for _, engine := range syncEngines {
		if !slices.Contains(selected, engine.Name) {
			declined = append(declined, engine.Name)
		}
	}
	return declined
}

func (a *App) handleSyncPreferences(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		jsonError(w, http.StatusUnauthorized, "unauthorized", "no signed-in account")
		return
	}
	b, err := a.brokerFor(r, sess)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	d, err := b.OpenSyncPreferences(r.Context())
	if err != nil {
		a.Logger.Error("broker hook failed", "hook", "open_sync_preferences", "broker", b.Name(), "error", err)
		jsonError(w, http.StatusBadGateway, "channel_error", "unable to notify the browser")
		return
	}
	a.recordDirective(b, "open_sync_preferences", d)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleComplete(endpoint broker.Endpoint) http.HandlerFunc {
	page := completePages[endpoint]
	page.Endpoint = strings.ReplaceAll(string(endpoint), "_", "-")
	return func(w http.ResponseWriter, r *http.Request) {
		a.render(w, http.StatusOK, "complete", page)
	}
}

func (a *App) handleSettings(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		http.Redirect(w, r, a.path("/signin"), http.StatusFound)
		return
	}
	a.render(w, http.StatusOK, "complete", completePage{
		Endpoint: "settings",
		Title:    "Account settings",
		Message:  "Signed in as " + sess.Account.Email,
	})
}

func (a *App) handleResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	msg := "Enter your email to receive a reset link."
	if sess, _ := a.Sessions.Fetch(r); sess != nil && sess.Prefill.Email != "" {
		msg = "We will send a reset link to " + sess.Prefill.Email + "."
	}
	a.render(w, http.StatusOK, "complete", completePage{
		Endpoint: "reset-password",
		Title:    "Reset password",
		Message:  msg,
	})
}

type hook = func(ctx context.Context, account broker.Account) (*broker.Directive, error)

const minPasswordLength = 8

// validEmail accepts a bare address with a dotted or local domain.
func validEmail(email string) bool {
	if email == "" || len(email) > 256 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	_, domain, ok := strings.Cut(email, "@")
	return ok && domain != "" && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

var errNoAccount = errors.New("no signed-in account")

// finishOAuthFlow asks the OAuth server for a code on behalf of the session's
// account and returns the relier redirect.
func (a *App) finishOAuthFlow(r *http.Request, sess *Session) (string, error) {
	if sess.Account == nil {
		return "", errNoAccount
	}
	params := sess.OAuth
	redirect, err := a.OAuth.Authorize(r.Context(), sess.Account.SessionToken, client.AuthorizationRequest{
		ClientID:    params.ClientID,
		State:       params.State,
		Scope:       params.Scope,
		RedirectURI: params.RedirectURI,
	})
	if err != nil {
		a.Logger.Warn("authorize failed", "client_id", params.ClientID, "error", err)
		return "", err
	}
	if !isSafeRedirectURI(redirect) {
		a.Logger.Error("unsafe relier redirect", "client_id", params.ClientID, "redirect", redirect)
		return "", errors.New("unsafe relier redirect")
	}
	sess.OAuth = nil
	a.Sessions.Save(sess)
	return redirect, nil
}
