package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"accountsd/client"
)

// ConsoleProvider is the minimal behaviour the console login needs from the OAuth server.
type ConsoleProvider interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, expectedNonce string) (ConsoleUser, error)
}

// ProfileFetcher loads the profile of an access token's owner.
type ProfileFetcher interface {
	Get(ctx context.Context, accessToken string) (client.UserProfile, error)
}

// FxAProvider logs console users in against the platform OAuth server.
type FxAProvider struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	profile     ProfileFetcher
	logger      *slog.Logger
}

// NewFxAProvider builds the provider. With an issuer configured the endpoints
// come from OIDC discovery and id_tokens are verified; otherwise the endpoints
// are derived from oauth_uri and oauth_internal_uri and only the profile
// server vouches for the user.
func NewFxAProvider(ctx context.Context, cfg FxAOAuthConfig, profile ProfileFetcher, logger *slog.Logger) (*FxAProvider, error) {
	if profile == nil {
		return nil, errors.New("profile fetcher required")
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  strings.TrimSuffix(cfg.OAuthURI, "/") + "/authorization",
		TokenURL: strings.TrimSuffix(cfg.OAuthInternalURI, "/") + "/token",
	}
	var verifier *oidc.IDTokenVerifier
	if cfg.Issuer != "" {
		op, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discover issuer %s: %w", cfg.Issuer, err)
		}
		endpoint = op.Endpoint()
		verifier = op.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	}
	if cfg.ClientSecret == "" {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	return &FxAProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       strings.Fields(cfg.Scopes),
		},
		verifier: verifier,
		profile:  profile,
		logger:   logger,
	}, nil
}

// AuthCodeURL constructs the authorization request.
func (p *FxAProvider) AuthCodeURL(state, nonce string) string {
	var opts []oauth2.AuthCodeOption
	if nonce != "" && p.verifier != nil {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	return p.oauthConfig.AuthCodeURL(state, opts...)
}

// Exchange completes the code exchange and returns the console user.
func (p *FxAProvider) Exchange(ctx context.Context, code, expectedNonce string) (ConsoleUser, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return ConsoleUser{}, fmt.Errorf("exchange code: %w", err)
	}

	user := ConsoleUser{AccessToken: tok.AccessToken}

	if p.verifier != nil {
		rawIDToken, ok := tok.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			return ConsoleUser{}, errors.New("id_token missing in response")
		}
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return ConsoleUser{}, fmt.Errorf("verify id_token: %w", err)
		}
		var claims map[string]any
		if err := idToken.Claims(&claims); err != nil {
			return ConsoleUser{}, fmt.Errorf("parse claims: %w", err)
		}
		if expectedNonce != "" {
			if nonce, ok := claims["nonce"].(string); !ok || nonce != expectedNonce {
				return ConsoleUser{}, errors.New("nonce mismatch")
			}
		}
		user.Subject = idToken.Subject
		user.Claims = claims
	}

	profile, err := p.profile.Get(ctx, tok.AccessToken)
	if err != nil {
		return ConsoleUser{}, fmt.Errorf("fetch profile: %w", err)
	}
	if user.Subject != "" && profile.UID != "" && user.Subject != profile.UID {
		return ConsoleUser{}, errors.New("profile uid does not match id_token subject")
	}
	if profile.UID != "" {
		user.Subject = profile.UID
	}
	user.Email = profile.Email
	user.Name = profile.DisplayName

	p.logger.Debug("console login exchanged", "sub", user.Subject)
	return user, nil
}
