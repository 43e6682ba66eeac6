package server

import (
	"net/http"
	"net/url"
	"strings"
)

type oauthSignInPage struct {
	Relier      *Relier
	OAuth       OAuthParams
	Action      string
	ResetAction string
	SignUpURL   string
	Email       string
	Password    string
	Enabled     bool
	Error       string
}

func oauthParamsFrom(r *http.Request) OAuthParams {
	return OAuthParams{
		ClientID:    strings.TrimSpace(r.FormValue("client_id")),
		State:       r.FormValue("state"),
		Scope:       r.FormValue("scope"),
		RedirectURI: r.FormValue("redirect_uri"),
	}
}

func (p OAuthParams) query() string {
	v := url.Values{}
	v.Set("client_id", p.ClientID)
	v.Set("state", p.State)
	v.Set("scope", p.Scope)
	if p.RedirectURI != "" {
		v.Set("redirect_uri", p.RedirectURI)
	}
	return v.Encode()
}

// relierFor resolves and checks the relier named by the request's OAuth params.
func (a *App) relierFor(w http.ResponseWriter, params OAuthParams) (*Relier, bool) {
	relier, ok := a.Reliers.Get(params.ClientID)
	if !ok {
		a.Logger.Warn("unknown relier", "client_id", params.ClientID)
		a.renderError(w, http.StatusBadRequest, "Unknown client_id")
		return nil, false
	}
	if !relier.ValidRedirect(params.RedirectURI) {
		a.Logger.Warn("relier redirect rejected", "client_id", params.ClientID, "redirect_uri", params.RedirectURI)
		a.renderError(w, http.StatusBadRequest, "Invalid redirect_uri")
		return nil, false
	}
	return relier, true
}

// prefillReady reports whether the sign-in button starts enabled.
func prefillReady(p Prefill) bool {
	return validEmail(p.Email) && len(p.Password) >= minPasswordLength
}

func (a *App) handleOAuthSignInPage(w http.ResponseWriter, r *http.Request) {
	params := oauthParamsFrom(r)
	relier, ok := a.relierFor(w, params)
	if !ok {
		return
	}

	var prefill Prefill
	if sess, _ := a.Sessions.Fetch(r); sess != nil {
		prefill = sess.Prefill
	}
	a.renderOAuthSignIn(w, http.StatusOK, relier, params, prefill, "")
}

func (a *App) renderOAuthSignIn(w http.ResponseWriter, status int, relier *Relier, params OAuthParams, prefill Prefill, message string) {
	a.render(w, status, "oauth_signin", oauthSignInPage{
		Relier:      relier,
		OAuth:       params,
		Action:      a.path("/oauth/signin"),
		ResetAction: a.path("/oauth/signin/reset_password"),
		SignUpURL:   a.path("/oauth/signup") + "?" + params.query(),
		Email:       prefill.Email,
		Password:    prefill.Password,
		Enabled:     prefillReady(prefill),
		Error:       message,
	})
}

func (a *App) handleOAuthSignIn(w http.ResponseWriter, r *http.Request) {
	params := oauthParamsFrom(r)
	relier, ok := a.relierFor(w, params)
	if !ok {
		return
	}
	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session create failed", "error", err)
		a.renderError(w, http.StatusInternalServerError, "Unable to start a session")
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if !validEmail(email) || password == "" {
		a.renderOAuthSignIn(w, http.StatusBadRequest, relier, params, Prefill{Email: email}, "Valid email and password required")
		return
	}

	account, err := a.Accounts.SignIn(r.Context(), email, password)
	if err != nil {
		a.Logger.Warn("oauth sign in failed", "client_id", params.ClientID, "error", err)
		sess.Prefill = Prefill{Email: email}
		a.Sessions.Save(sess)
		status := upstreamStatus(err)
		msg := "Unable to sign in right now"
		if status == http.StatusUnauthorized {
			msg = "Incorrect email or password"
		}
		a.renderOAuthSignIn(w, status, relier, params, sess.Prefill, msg)
		return
	}

	sess.Account = &account
	sess.Prefill = Prefill{}
	sess.OAuth = &params

	if account.Verified {
		a.Sessions.Save(sess)
		redirect, err := a.finishOAuthFlow(r, sess)
		if err != nil {
			a.renderError(w, upstreamStatus(err), "Unable to complete sign-in for "+relier.Name)
			return
		}
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	// Unverified: keep the OAuth params so the confirmation poll can finish the flow.
	a.Sessions.Save(sess)
	if err := a.Accounts.SignUpResend(r.Context(), account.SessionToken); err != nil {
		a.Logger.Warn("resend code failed", "error", err)
	}
	http.Redirect(w, r, a.path("/confirm"), http.StatusFound)
}

func (a *App) handleOAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	params := oauthParamsFrom(r)
	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session create failed", "error", err)
		a.renderError(w, http.StatusInternalServerError, "Unable to start a session")
		return
	}
	// The reset page always follows; only a known relier's params are kept
	// for the confirmation poll to finish.
	sess.OAuth = nil
	if relier, ok := a.Reliers.Get(params.ClientID); ok && relier.ValidRedirect(params.RedirectURI) {
		sess.OAuth = &params
	} else {
		a.Logger.Warn("reset password with unknown relier", "client_id", params.ClientID)
	}
	sess.Prefill = Prefill{}

	email := strings.TrimSpace(r.PostFormValue("email"))
	if validEmail(email) {
		exists, err := a.Accounts.AccountExists(r.Context(), email)
		switch {
		case err != nil:
			a.Logger.Warn("account status failed", "error", err)
		case exists:
			sess.Prefill.Email = email
		}
	}
	a.Sessions.Save(sess)
	http.Redirect(w, r, a.path("/reset_password"), http.StatusFound)
}

func (a *App) handleOAuthSignUpPage(w http.ResponseWriter, r *http.Request) {
	params := oauthParamsFrom(r)
	relier, ok := a.relierFor(w, params)
	if !ok {
		return
	}
	a.render(w, http.StatusOK, "signup", signUpPage{
		Action:    a.path("/oauth/signup") + "?" + params.query(),
		SignInURL: a.path("/oauth/signin") + "?" + params.query(),
		Relier:    relier,
	})
}

func (a *App) handleOAuthSignUp(w http.ResponseWriter, r *http.Request) {
	params := oauthParamsFrom(r)
	relier, ok := a.relierFor(w, params)
	if !ok {
		return
	}
	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session create failed", "error", err)
		a.renderError(w, http.StatusInternalServerError, "Unable to start a session")
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	page := signUpPage{
		Action:    a.path("/oauth/signup") + "?" + params.query(),
		SignInURL: a.path("/oauth/signin") + "?" + params.query(),
		Relier:    relier,
		Email:     email,
	}
	if !validEmail(email) || len(password) < minPasswordLength {
		page.Error = "Valid email and a password of at least 8 characters required"
		a.render(w, http.StatusBadRequest, "signup", page)
		return
	}

	// Existing accounts go to sign-in with both fields carried over.
	if exists, err := a.Accounts.AccountExists(r.Context(), email); err == nil && exists {
		sess.Prefill = Prefill{Email: email, Password: password}
		a.Sessions.Save(sess)
		http.Redirect(w, r, a.path("/oauth/signin")+"?"+params.query(), http.StatusFound)
		return
	}

	account, err := a.Accounts.SignUp(r.Context(), email, password)
	if err != nil {
		a.Logger.Warn("oauth sign up failed", "client_id", params.ClientID, "error", err)
		page.Error = "Unable to create the account"
		a.render(w, upstreamStatus(err), "signup", page)
		return
	}

	sess.Account = &account
	sess.OAuth = &params
	sess.Prefill = Prefill{}
	a.Sessions.Save(sess)
	http.Redirect(w, r, a.path("/confirm"), http.StatusFound)
}
