package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// OAuth calls the OAuth server on behalf of a signed-in account.
type OAuth struct {
	http *resty.Client
}

// NewOAuth builds an OAuth server client rooted at cfg.BaseURL.
func NewOAuth(cfg Config) *OAuth {
	return &OAuth{http: newRestClient(cfg)}
}

// AuthorizationRequest carries the relier's OAuth parameters.
type AuthorizationRequest struct {
	ClientID    string `json:"client_id"`
	State       string `json:"state"`
	Scope       string `json:"scope"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// Authorize grants the relier a code and returns the redirect back to it.
func (o *OAuth) Authorize(ctx context.Context, sessionToken string, req AuthorizationRequest) (string, error) {
	var out struct {
		Redirect string `json:"redirect"`
		Code     string `json:"code"`
		State    string `json:"state"`
	}
	resp, err := o.http.R().
		SetContext(ctx).
		SetAuthToken(sessionToken).
		SetBody(req).
		SetResult(&out).
		Post("/authorization")
	if err != nil {
		return "", fmt.Errorf("authorization request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return "", err
	}
	if out.Redirect == "" {
		return "", errors.New("authorization response missing redirect")
	}
	return out.Redirect, nil
}
