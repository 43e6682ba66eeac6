package broker

import (
	"context"
	"maps"
)

// Endpoint names a screen the router can navigate to after a lifecycle hook.
type Endpoint string

const (
	EndpointForceAuthComplete Endpoint = "force_auth_complete"
	EndpointSignInComplete    Endpoint = "signin_complete"
	EndpointSignUpComplete    Endpoint = "signup_complete"
	EndpointChooseWhatToSync  Endpoint = "choose_what_to_sync"
)

var endpoints = []Endpoint{
	EndpointForceAuthComplete,
	EndpointSignInComplete,
	EndpointSignUpComplete,
	EndpointChooseWhatToSync,
}

// Endpoints lists every screen a directive may point to.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(endpoints))
	copy(out, endpoints)
	return out
}

// Valid reports whether e belongs to the fixed endpoint set.
func (e Endpoint) Valid() bool {
	for _, known := range endpoints {
		if e == known {
			return true
		}
	}
	return false
}

// Messages sent over the channel.
const (
	MessageLogin           = "fxaccounts:login"
	MessageSyncPreferences = "fxaccounts:sync_preferences"
)

// Capability names queried by views.
const (
	CapabilityChooseWhatToSyncCheckbox = "chooseWhatToSyncCheckbox"
	CapabilityChooseWhatToSyncWebV1    = "chooseWhatToSyncWebV1"
	CapabilitySignUp                   = "signup"
	CapabilitySignedInNotification     = "handleSignedInNotification"
)

// Directive tells the caller which screen comes next. A nil *Directive means
// the broker has no opinion and the caller picks its own destination.
type Directive struct {
	Endpoint Endpoint `json:"endpoint,omitempty"`
	Halt     bool     `json:"halt,omitempty"`
}

// Account is the authenticated account handed to lifecycle hooks.
type Account struct {
	Email         string
	UID           string
	SessionToken  string
	KeyFetchToken string
	UnwrapBKey    string
	Verified      bool
	CustomizeSync bool
}

// LoginData is the payload of a login notification.
type LoginData struct {
	Email         string `json:"email"`
	UID           string `json:"uid"`
	SessionToken  string `json:"sessionToken"`
	KeyFetchToken string `json:"keyFetchToken"`
	UnwrapBKey    string `json:"unwrapBKey"`
	Verified      bool   `json:"verified"`
	CustomizeSync bool   `json:"customizeSync"`
}

// NewLoginData copies the account fields the host shell needs to resume the session.
func NewLoginData(a Account) LoginData {
	return LoginData{
		Email:         a.Email,
		UID:           a.UID,
		SessionToken:  a.SessionToken,
		KeyFetchToken: a.KeyFetchToken,
		UnwrapBKey:    a.UnwrapBKey,
		Verified:      a.Verified,
		CustomizeSync: a.CustomizeSync,
	}
}

// Capabilities is an immutable name to flag table. Missing names read as false.
type Capabilities map[string]bool

// Has reports whether the named capability is enabled.
func (c Capabilities) Has(name string) bool {
	return c[name]
}

// With returns a copy of c with overrides applied on top.
func (c Capabilities) With(overrides map[string]bool) Capabilities {
	out := make(Capabilities, len(c)+len(overrides))
	maps.Copy(out, c)
	maps.Copy(out, overrides)
	return out
}

func baselineCapabilities() Capabilities {
	return Capabilities{
		CapabilitySignUp:                   true,
		CapabilitySignedInNotification:     true,
		CapabilityChooseWhatToSyncCheckbox: true,
		CapabilityChooseWhatToSyncWebV1:    false,
	}
}

// Broker decides what happens after each authentication lifecycle step.
type Broker interface {
	Name() string
	HasCapability(name string) bool
	AfterForceAuth(ctx context.Context, account Account) (*Directive, error)
	AfterSignIn(ctx context.Context, account Account) (*Directive, error)
	AfterSignUp(ctx context.Context, account Account) (*Directive, error)
	AfterSignUpConfirmationPoll(ctx context.Context, account Account) (*Directive, error)
	BeforeSignUpConfirmationPoll(ctx context.Context, account Account) (*Directive, error)
	OpenSyncPreferences(ctx context.Context) (*Directive, error)
}

func navigate(e Endpoint) *Directive {
	return &Directive{Endpoint: e}
}

// proceed is the "keep going" directive returned before confirmation polling.
func proceed() *Directive {
	return &Directive{}
}
