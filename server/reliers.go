package server

import (
	"errors"
	"net/url"
	"strings"
)

// RelierRegistry holds the OAuth relying parties allowed to use the sign-in view.
type RelierRegistry struct {
	reliers map[string]*Relier
}

// NewRelierRegistry builds the registry from configuration.
func NewRelierRegistry(cfgs []RelyingPartyConfig) (*RelierRegistry, error) {
	reliers := make(map[string]*Relier, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.ClientID == "" {
			return nil, errors.New("client_id required")
		}
		name := cfg.Name
		if name == "" {
			name = cfg.ClientID
		}
		reliers[cfg.ClientID] = &Relier{
			ClientID:    cfg.ClientID,
			Name:        name,
			RedirectURI: cfg.RedirectURI,
		}
	}
	return &RelierRegistry{reliers: reliers}, nil
}

// Get retrieves a relier definition.
func (rr *RelierRegistry) Get(id string) (*Relier, bool) {
	relier, ok := rr.reliers[id]
	return relier, ok
}

// ValidRedirect reports whether uri may be forwarded to the OAuth server for
// this relier. An empty uri defers to the registered one.
func (r *Relier) ValidRedirect(uri string) bool {
	if uri == "" {
		return true
	}
	if !isSafeRedirectURI(uri) {
		return false
	}
	return r.RedirectURI == "" || r.RedirectURI == uri
}

// isSafeRedirectURI blocks open redirects: only absolute http(s) URLs with a
// plain host are accepted.
func isSafeRedirectURI(uri string) bool {
	if uri == "" || strings.HasPrefix(uri, "//") {
		return false
	}

	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" || u.User != nil {
		return false
	}

	// Reject user:pass@host and fragment tricks the parser may have split oddly.
	rest := uri[len(u.Scheme)+len("://"):]
	if strings.Contains(rest, "@") {
		return false
	}
	host, _, _ := strings.Cut(rest, "/")
	return !strings.Contains(host, "#") && !strings.Contains(host, "\\")
}
