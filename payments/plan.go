// Package payments holds the subscription checkout rules: plan cadence,
// legal copy, Stripe locale selection, form validation and the post-purchase
// redirect target.
package payments

import (
	"fmt"
	"strings"
)

// DefaultProductRedirectURL is used when neither the plan nor the product configure a destination.
const DefaultProductRedirectURL = "https://mozilla.org"

// Interval is a billing period unit.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Valid reports whether i is a known billing period.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// Plan is a purchasable subscription plan.
type Plan struct {
	PlanID        string            `yaml:"plan_id" json:"plan_id"`
	ProductID     string            `yaml:"product_id" json:"product_id"`
	ProductName   string            `yaml:"product_name" json:"product_name"`
	Currency      string            `yaml:"currency" json:"currency"`
	Amount        int64             `yaml:"amount" json:"amount"`
	Interval      Interval          `yaml:"interval" json:"interval"`
	IntervalCount int               `yaml:"interval_count" json:"interval_count"`
	Metadata      map[string]string `yaml:"metadata" json:"metadata,omitempty"`
}

// Validate checks the fields the checkout relies on.
func (p Plan) Validate() error {
	if p.PlanID == "" {
		return fmt.Errorf("plan_id is required")
	}
	if p.ProductID == "" {
		return fmt.Errorf("plan %s: product_id is required", p.PlanID)
	}
	if !p.Interval.Valid() {
		return fmt.Errorf("plan %s: interval must be one of day, week, month, year, got: %q", p.PlanID, p.Interval)
	}
	if p.IntervalCount < 1 {
		return fmt.Errorf("plan %s: interval_count must be at least 1", p.PlanID)
	}
	if len(p.Currency) != 3 {
		return fmt.Errorf("plan %s: currency must be a three letter ISO code, got: %q", p.PlanID, p.Currency)
	}
	if p.Amount < 0 {
		return fmt.Errorf("plan %s: amount cannot be negative", p.PlanID)
	}
	return nil
}

// DownloadURL returns the product download link configured in plan metadata.
func (p Plan) DownloadURL() string {
	return strings.TrimSpace(p.Metadata["downloadURL"])
}

// RedirectURL picks where the user goes after a purchase: the plan download
// link, then the per-product redirect, then fallback (DefaultProductRedirectURL when empty).
func RedirectURL(plan Plan, productRedirectURLs map[string]string, fallback string) string {
	if u := plan.DownloadURL(); u != "" {
		return u
	}
	if u := strings.TrimSpace(productRedirectURLs[plan.ProductID]); u != "" {
		return u
	}
	if fallback != "" {
		return fallback
	}
	return DefaultProductRedirectURL
}

// Catalog indexes plans by id.
type Catalog struct {
	plans map[string]Plan
	order []string
}

// NewCatalog builds a catalog, rejecting invalid or duplicate plans.
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.PlanID]; dup {
			return nil, fmt.Errorf("duplicate plan %s", p.PlanID)
		}
		c.plans[p.PlanID] = p
		c.order = append(c.order, p.PlanID)
	}
	return c, nil
}

// Get returns the plan with id.
func (c *Catalog) Get(id string) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Plans returns every plan in configuration order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}
