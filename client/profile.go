package client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Profile calls the profile server with an OAuth access token.
type Profile struct {
	http *resty.Client
}

// NewProfile builds a profile client rooted at cfg.BaseURL.
func NewProfile(cfg Config) *Profile {
	return &Profile{http: newRestClient(cfg)}
}

// UserProfile is the subset of the profile the console shows.
type UserProfile struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// Get fetches the profile of the token's owner.
func (p *Profile) Get(ctx context.Context, accessToken string) (UserProfile, error) {
	var out UserProfile
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&out).
		Get("/profile")
	if err != nil {
		return UserProfile{}, fmt.Errorf("profile request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return UserProfile{}, err
	}
	return out, nil
}
