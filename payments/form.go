package payments

import "strings"

// Form field names, also used as keys in Form.Errors.
const (
	FieldName    = "name"
	FieldCard    = "card"
	FieldConfirm = "confirm"
)

// Form is the submitted state of the checkout form.
type Form struct {
	Name         string
	PaymentToken string
	CardError    string
	Confirm      bool
	Confirmed    bool
	InProgress   bool
	Plan         *Plan
}

// ShowConfirm reports whether the legal confirmation checkbox is rendered.
func (f Form) ShowConfirm() bool {
	return f.Confirm && f.Plan != nil
}

// ShowLegalLinks reports whether terms and privacy links are rendered.
func (f Form) ShowLegalLinks() bool {
	return f.Plan != nil
}

// Errors returns a message per invalid field.
func (f Form) Errors() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(f.Name) == "" {
		errs[FieldName] = "Please enter your name"
	}
	switch {
	case f.CardError != "":
		errs[FieldCard] = f.CardError
	case strings.TrimSpace(f.PaymentToken) == "":
		errs[FieldCard] = "Please enter your card details"
	}
	if f.ShowConfirm() && !f.Confirmed {
		errs[FieldConfirm] = "Please confirm the payment authorization"
	}
	return errs
}

// CanSubmit reports whether the form is complete and not already being submitted.
func (f Form) CanSubmit() bool {
	return !f.InProgress && len(f.Errors()) == 0
}
