package server

import (
	"maps"
	"time"

	"accountsd/broker"
)

// Session captures a browser session bound to the fxa_session cookie.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time

	// Account is set once the user signs in or signs up.
	Account *broker.Account
	// Context is the broker name the flow started with.
	Context string

	OAuth   *OAuthParams
	Prefill Prefill

	Console      *ConsoleUser
	ConsoleState string
	ConsoleNonce string
}

// clone copies the session including everything its pointers reach, so a
// handler's copy never aliases the stored one.
func (s Session) clone() Session {
	if s.Account != nil {
		account := *s.Account
		s.Account = &account
	}
	if s.OAuth != nil {
		params := *s.OAuth
		s.OAuth = &params
	}
	if s.Console != nil {
		user := *s.Console
		user.Claims = maps.Clone(user.Claims)
		s.Console = &user
	}
	return s
}

// OAuthParams are the relier's authorization parameters, kept while the
// user detours through confirmation or password reset.
type OAuthParams struct {
	ClientID    string `json:"client_id"`
	State       string `json:"state"`
	Scope       string `json:"scope"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// Prefill holds form values carried between pages.
type Prefill struct {
	Email    string
	Password string
}

// ConsoleUser is the identity established by the console OAuth login.
type ConsoleUser struct {
	Subject     string         `json:"sub"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	AccessToken string         `json:"-"`
	Claims      map[string]any `json:"claims,omitempty"`
}

// Relier records an OAuth relying party allowed to use the sign-in view.
type Relier struct {
	ClientID    string
	Name        string
	RedirectURI string
}
