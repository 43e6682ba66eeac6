package client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"accountsd/broker"
)

// Accounts calls the accounts server.
type Accounts struct {
	http *resty.Client
}

// NewAccounts builds an accounts client rooted at cfg.BaseURL.
func NewAccounts(cfg Config) *Accounts {
	return &Accounts{http: newRestClient(cfg)}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UID           string `json:"uid"`
	SessionToken  string `json:"sessionToken"`
	KeyFetchToken string `json:"keyFetchToken"`
	UnwrapBKey    string `json:"unwrapBKey"`
	Verified      bool   `json:"verified"`
}

func (r loginResponse) account(email string) broker.Account {
	return broker.Account{
		Email:         email,
		UID:           r.UID,
		SessionToken:  r.SessionToken,
		KeyFetchToken: r.KeyFetchToken,
		UnwrapBKey:    r.UnwrapBKey,
		Verified:      r.Verified,
	}
}

// SignIn authenticates an existing account.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (broker.Account, error) {
	return a.login(ctx, "/account/login", email, password)
}

// SignUp creates an account. The returned account is unverified until the email is confirmed.
func (a *Accounts) SignUp(ctx context.Context, email, password string) (broker.Account, error) {
	return a.login(ctx, "/account/create", email, password)
}

func (a *Accounts) login(ctx context.Context, path, email, password string) (broker.Account, error) {
	var out loginResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("keys", "true").
		SetBody(credentials{Email: email, Password: password}).
		SetResult(&out).
		Post(path)
	if err != nil {
		return broker.Account{}, fmt.Errorf("%s request: %w", path, err)
	}
	if err := mapHTTPError(resp); err != nil {
		return broker.Account{}, err
	}
	return out.account(email), nil
}

// SignUpResend asks the accounts server to resend the verification email.
func (a *Accounts) SignUpResend(ctx context.Context, sessionToken string) error {
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(sessionToken).
		SetBody(struct{}{}).
		Post("/recovery_email/resend_code")
	if err != nil {
		return fmt.Errorf("resend code request: %w", err)
	}
	return mapHTTPError(resp)
}

// RecoveryEmailStatus reports whether the account's primary email is verified.
func (a *Accounts) RecoveryEmailStatus(ctx context.Context, sessionToken string) (bool, error) {
	var out struct {
		Email    string `json:"email"`
		Verified bool   `json:"verified"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetAuthToken(sessionToken).
		SetResult(&out).
		Get("/recovery_email/status")
	if err != nil {
		return false, fmt.Errorf("recovery email status request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// AccountExists reports whether an account is registered for email.
func (a *Accounts) AccountExists(ctx context.Context, email string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		SetResult(&out).
		Post("/account/status")
	if err != nil {
		return false, fmt.Errorf("account status request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return false, err
	}
	return out.Exists, nil
}
