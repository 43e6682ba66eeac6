package client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Subscriptions calls the subscriptions API.
type Subscriptions struct {
	http *resty.Client
}

// NewSubscriptions builds a subscriptions client rooted at cfg.BaseURL.
func NewSubscriptions(cfg Config) *Subscriptions {
	return &Subscriptions{http: newRestClient(cfg)}
}

// SubscriptionRequest is a checkout submission.
type SubscriptionRequest struct {
	SessionToken   string `json:"-"`
	IdempotencyKey string `json:"-"`
	PlanID         string `json:"planId"`
	DisplayName    string `json:"displayName"`
	PaymentToken   string `json:"paymentToken"`
	Email          string `json:"email"`
}

// Subscription is the created subscription.
type Subscription struct {
	SubscriptionID string `json:"subscriptionId"`
	PlanID         string `json:"planId"`
	ProductID      string `json:"productId"`
	Status         string `json:"status"`
}

// CreateSubscription subscribes the account to a plan. Retries with the same
// idempotency key never create a second subscription.
func (s *Subscriptions) CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error) {
	var out Subscription
	r := s.http.R().
		SetContext(ctx).
		SetAuthToken(req.SessionToken).
		SetBody(req).
		SetResult(&out)
	if req.IdempotencyKey != "" {
		r.SetHeader("Idempotency-Key", req.IdempotencyKey)
	}
	resp, err := r.Post("/v1/subscriptions/active/new")
	if err != nil {
		return Subscription{}, fmt.Errorf("create subscription request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return Subscription{}, err
	}
	return out, nil
}
