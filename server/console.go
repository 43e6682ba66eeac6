package server

import (
	"net/http"

	"github.com/google/uuid"
)

func (a *App) handleConsoleLogin(w http.ResponseWriter, r *http.Request) {
	if a.Console == nil {
		a.renderError(w, http.StatusServiceUnavailable, "Console login is not configured")
		return
	}
	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session create failed", "error", err)
		a.renderError(w, http.StatusInternalServerError, "Unable to start a session")
		return
	}
	sess.ConsoleState = uuid.NewString()
	sess.ConsoleNonce = uuid.NewString()
	a.Sessions.Save(sess)

	http.Redirect(w, r, a.Console.AuthCodeURL(sess.ConsoleState, sess.ConsoleNonce), http.StatusFound)
}

func (a *App) handleConsoleRedirect(w http.ResponseWriter, r *http.Request) {
	if a.Console == nil {
		a.renderError(w, http.StatusServiceUnavailable, "Console login is not configured")
		return
	}
	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		a.Logger.Warn("console login denied", "error", errCode, "description", q.Get("error_description"))
		a.renderError(w, http.StatusBadRequest, "Login was not completed: "+errCode)
		return
	}

	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.ConsoleState == "" || q.Get("state") != sess.ConsoleState {
		a.Logger.Warn("console login state mismatch")
		a.renderError(w, http.StatusBadRequest, "Login state mismatch")
		return
	}
	code := q.Get("code")
	if code == "" {
		a.renderError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	nonce := sess.ConsoleNonce
	sess.ConsoleState, sess.ConsoleNonce = "", ""
	user, err := a.Console.Exchange(r.Context(), code, nonce)
	if err != nil {
		a.Sessions.Save(sess)
		a.Logger.Error("console login exchange failed", "error", err)
		a.renderError(w, http.StatusBadGateway, "Unable to complete login")
		return
	}
	sess.Console = &user
	a.Sessions.Save(sess)

	a.Logger.Info("console login", "sub", user.Subject)
	http.Redirect(w, r, a.path("/console/profile"), http.StatusFound)
}

func (a *App) handleConsoleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	a.Sessions.Clear(w, sess)
	http.Redirect(w, r, a.path("/"), http.StatusFound)
}

func (a *App) handleConsoleProfile(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Console == nil {
		jsonError(w, http.StatusUnauthorized, "unauthorized", "console login required")
		return
	}
	writeJSON(w, http.StatusOK, sess.Console)
}
