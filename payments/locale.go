package payments

import (
	"strings"

	"golang.org/x/text/language"
)

const stripeLocaleAuto = "auto"

// Languages Stripe Elements can render.
var stripeLocales = map[string]bool{
	"ar": true, "bg": true, "cs": true, "da": true, "de": true, "el": true,
	"en": true, "es": true, "et": true, "fi": true, "fr": true, "he": true,
	"id": true, "it": true, "ja": true, "lt": true, "lv": true, "ms": true,
	"mt": true, "nb": true, "nl": true, "no": true, "pl": true, "pt": true,
	"ro": true, "ru": true, "sk": true, "sl": true, "sv": true, "tr": true,
	"zh": true,
}

// LocaleToStripeLocale maps a BCP 47 locale to the Stripe Elements locale,
// falling back to "auto" for empty or unsupported input.
func LocaleToStripeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return stripeLocaleAuto
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return stripeLocaleAuto
	}
	base, conf := tag.Base()
	if conf == language.No {
		return stripeLocaleAuto
	}
	if stripeLocales[base.String()] {
		return base.String()
	}
	return stripeLocaleAuto
}

// PreferredStripeLocale picks the Stripe locale from an Accept-Language header.
func PreferredStripeLocale(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return stripeLocaleAuto
	}
	for _, tag := range tags {
		if l := LocaleToStripeLocale(tag.String()); l != stripeLocaleAuto {
			return l
		}
	}
	return stripeLocaleAuto
}
