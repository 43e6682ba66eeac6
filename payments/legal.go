package payments

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"NZD": "NZ$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"CHF": "CHF ",
}

// FormatCurrency renders an amount in minor units, e.g. 500 USD as "$5.00".
func FormatCurrency(amount int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}

	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	number := fmt.Sprintf("%d", amount)
	if scale > 0 {
		div := int64(1)
		for i := 0; i < scale; i++ {
			div *= 10
		}
		number = fmt.Sprintf("%d.%0*d", amount/div, scale, amount%div)
	}

	if sym, ok := currencySymbols[code]; ok {
		return sign + sym + number
	}
	return sign + code + " " + number
}

// Localized is a message id with its arguments and the default English text.
type Localized struct {
	ID   string
	Vars LegalVars
	Text string
}

// LegalVars are the arguments of the legal checkbox message.
type LegalVars struct {
	Amount        string
	IntervalCount int
}

const legalTemplate = "I authorize Mozilla, maker of Firefox products, to charge my payment method <strong>%s %s</strong>, according to <termsOfServiceLink>Terms of Service</termsOfServiceLink> and <privacyNoticeLink>Privacy Notice</privacyNoticeLink>, until I cancel my subscription."

// LegalText builds the authorization copy shown next to the confirm checkbox.
func LegalText(plan Plan) Localized {
	amount := FormatCurrency(plan.Amount, plan.Currency)
	return Localized{
		ID: "payment-confirm-with-legal-links-" + string(plan.Interval),
		Vars: LegalVars{
			Amount:        amount,
			IntervalCount: plan.IntervalCount,
		},
		Text: fmt.Sprintf(legalTemplate, amount, Cadence(plan.Interval, plan.IntervalCount)),
	}
}

// Cadence describes how often a plan bills: "monthly" or "every 6 months".
func Cadence(interval Interval, count int) string {
	if count <= 1 {
		switch interval {
		case IntervalDay:
			return "daily"
		case IntervalWeek:
			return "weekly"
		case IntervalMonth:
			return "monthly"
		case IntervalYear:
			return "yearly"
		}
		return string(interval)
	}
	return fmt.Sprintf("every %d %ss", count, interval)
}
