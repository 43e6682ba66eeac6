package server

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"accountsd/client"
	"accountsd/payments"
)

const submitNonceTTL = 30 * time.Minute

type checkoutPage struct {
	Action       string
	Nonce        string
	Plan         payments.Plan
	Price        string
	Form         payments.Form
	Errors       map[string]string
	Legal        payments.Localized
	LegalHTML    template.HTML
	StripeLocale string
	Submitted    bool
}

type successPage struct {
	ProductName string
	RedirectURL string
}

// legalMarkup renders the legal text with its inline tags, escaping
// everything else.
var legalMarkup = strings.NewReplacer(
	"&lt;strong&gt;", "<strong>",
	"&lt;/strong&gt;", "</strong>",
	"&lt;termsOfServiceLink&gt;", `<a href="https://www.mozilla.org/about/legal/terms/services/">`,
	"&lt;/termsOfServiceLink&gt;", "</a>",
	"&lt;privacyNoticeLink&gt;", `<a href="https://www.mozilla.org/privacy/firefox-private-network/">`,
	"&lt;/privacyNoticeLink&gt;", "</a>",
)

func (a *App) checkoutPlan(w http.ResponseWriter, r *http.Request) (payments.Plan, *Session, bool) {
	plan, ok := a.Catalog.Get(chi.URLParam(r, "planID"))
	if !ok {
		a.renderError(w, http.StatusNotFound, "Unknown plan")
		return payments.Plan{}, nil, false
	}
	sess, _ := a.Sessions.Fetch(r)
	if sess == nil || sess.Account == nil {
		http.Redirect(w, r, a.path("/signin"), http.StatusFound)
		return payments.Plan{}, nil, false
	}
	return plan, sess, true
}

func (a *App) renderCheckout(w http.ResponseWriter, r *http.Request, status int, plan payments.Plan, form payments.Form, errs map[string]string, nonce string) {
	legal := payments.LegalText(plan)
	a.render(w, status, "checkout", checkoutPage{
		Action:       a.path("/subscriptions/plans/" + url.PathEscape(plan.PlanID) + "/checkout"),
		Nonce:        nonce,
		Plan:         plan,
		Price:        legal.Vars.Amount + " " + payments.Cadence(plan.Interval, plan.IntervalCount),
		Form:         form,
		Errors:       errs,
		Legal:        legal,
		LegalHTML:    template.HTML(legalMarkup.Replace(template.HTMLEscapeString(legal.Text))),
		StripeLocale: payments.PreferredStripeLocale(r.Header.Get("Accept-Language")),
		Submitted:    form.InProgress,
	})
}

func (a *App) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	plan, _, ok := a.checkoutPlan(w, r)
	if !ok {
		return
	}
	form := payments.Form{Confirm: a.Config.Payments.RequireConfirm, Plan: &plan}
	a.renderCheckout(w, r, http.StatusOK, plan, form, map[string]string{}, a.Store.IssueNonce(submitNonceTTL))
}

func (a *App) handleCheckoutSubmit(w http.ResponseWriter, r *http.Request) {
	plan, sess, ok := a.checkoutPlan(w, r)
	if !ok {
		return
	}

	nonce := r.PostFormValue("submit_nonce")
	form := payments.Form{
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		PaymentToken: strings.TrimSpace(r.PostFormValue("payment_token")),
		CardError:    r.PostFormValue("card_error"),
		Confirm:      a.Config.Payments.RequireConfirm,
		Confirmed:    r.PostFormValue("confirm") == "true",
		Plan:         &plan,
	}
	if !form.CanSubmit() {
		a.renderCheckout(w, r, http.StatusBadRequest, plan, form, form.Errors(), nonce)
		return
	}

	if !a.Store.ConsumeNonce(nonce) {
		a.Logger.Warn("checkout submitted twice", "plan_id", plan.PlanID)
		a.renderError(w, http.StatusConflict, "This payment was already submitted")
		return
	}

	sub, err := a.Subscriptions.CreateSubscription(r.Context(), client.SubscriptionRequest{
		SessionToken:   sess.Account.SessionToken,
		IdempotencyKey: nonce,
		PlanID:         plan.PlanID,
		DisplayName:    form.Name,
		PaymentToken:   form.PaymentToken,
		Email:          sess.Account.Email,
	})
	if err != nil {
		a.Logger.Error("create subscription failed", "plan_id", plan.PlanID, "error", err)
		form.CardError = "Payment could not be processed"
		a.renderCheckout(w, r, upstreamStatus(err), plan, form, map[string]string{payments.FieldCard: form.CardError}, a.Store.IssueNonce(submitNonceTTL))
		return
	}

	a.Logger.Info("subscription created", "plan_id", plan.PlanID, "subscription_id", sub.SubscriptionID)
	target := a.path("/subscriptions/products/"+url.PathEscape(plan.ProductID)+"/success") + "?" + url.Values{"plan": {plan.PlanID}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (a *App) handleSubscriptionSuccess(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	plan, ok := a.Catalog.Get(r.URL.Query().Get("plan"))
	if !ok || plan.ProductID != productID {
		a.renderError(w, http.StatusNotFound, "Unknown product")
		return
	}
	a.render(w, http.StatusOK, "subscription_success", successPage{
		ProductName: plan.ProductName,
		RedirectURL: payments.RedirectURL(plan, a.Config.Payments.ProductRedirectURLs, a.Config.Payments.DefaultRedirectURL),
	})
}
