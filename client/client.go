// Package client talks to the platform APIs the web pages sit in front of:
// the accounts (auth) server, the OAuth server and the subscriptions API.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnauthorized is matched by APIError for 401 responses.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is matched by APIError for 404 responses.
	ErrNotFound = errors.New("not found")
)

// Config is shared by every client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// APIError is a non-2xx response from a platform API.
type APIError struct {
	Status  int    `json:"code"`
	Errno   int    `json:"errno"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("api error %d (errno %d): %s", e.Status, e.Errno, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Is lets errors.Is match the sentinel errors by status.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

func newRestClient(cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

func mapHTTPError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(resp.Body()))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
	}
	apiErr.Status = resp.StatusCode()
	return apiErr
}
