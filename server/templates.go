package server

import (
	"bytes"
	"html/template"
	"net/http"
)

const pageTemplates = `
{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.}} - Firefox Accounts</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 0; padding: 2rem; background: #f9f9fa; color: #0c0c0d; }
    main { max-width: 28rem; margin: 0 auto; background: #fff; padding: 2rem; border-radius: 8px; box-shadow: 0 1px 4px rgba(12,12,13,.1); }
    label { display: block; margin-top: 1rem; }
    input[type=email], input[type=password], input[type=text] { width: 100%; padding: .5rem; box-sizing: border-box; }
    button { margin-top: 1.5rem; padding: .6rem 1.2rem; background: #0060df; color: #fff; border: 0; border-radius: 4px; }
    button.disabled, button[disabled] { background: #b1b1b3; }
    .error { color: #d70022; font-size: .9rem; }
    .links { margin-top: 1.5rem; font-size: .9rem; }
  </style>
</head>
<body><main>{{end}}

{{define "foot"}}</main></body>
</html>{{end}}

{{define "oauth_signin"}}{{template "head" "Sign in"}}
  <h1 id="fxa-signin-header">Sign in <span class="service">Continue to {{.Relier.Name}}</span></h1>
  {{with .Error}}<p class="error">{{.}}</p>{{end}}
  <form method="post" action="{{.Action}}">
    <input type="hidden" name="client_id" value="{{.OAuth.ClientID}}">
    <input type="hidden" name="state" value="{{.OAuth.State}}">
    <input type="hidden" name="scope" value="{{.OAuth.Scope}}">
    <input type="hidden" name="redirect_uri" value="{{.OAuth.RedirectURI}}">
    <label>Email <input class="email" type="email" name="email" value="{{.Email}}" required></label>
    <label>Password <input class="password" type="password" name="password" value="{{.Password}}" minlength="8" required></label>
    <button id="submit-btn" type="submit"{{if not .Enabled}} class="disabled"{{end}}>Sign in</button>
  </form>
  <form method="post" action="{{.ResetAction}}">
    <input type="hidden" name="client_id" value="{{.OAuth.ClientID}}">
    <input type="hidden" name="state" value="{{.OAuth.State}}">
    <input type="hidden" name="scope" value="{{.OAuth.Scope}}">
    <input type="hidden" name="redirect_uri" value="{{.OAuth.RedirectURI}}">
    <input type="hidden" name="email" value="{{.Email}}">
    <button class="reset-password" type="submit">Forgot password?</button>
  </form>
  <p class="links"><a class="sign-up" href="{{.SignUpURL}}">Create an account</a></p>
{{template "foot"}}{{end}}

{{define "signin"}}{{template "head" "Sign in"}}
  <h1 id="fxa-signin-header">Sign in</h1>
  {{with .Error}}<p class="error">{{.}}</p>{{end}}
  <form method="post" action="{{.Action}}">
    <label>Email <input class="email" type="email" name="email" value="{{.Email}}" required></label>
    <label>Password <input class="password" type="password" name="password" minlength="8" required></label>
    <button type="submit">Sign in</button>
  </form>
  <p class="links"><a class="sign-up" href="{{.SignUpURL}}">Create an account</a></p>
{{template "foot"}}{{end}}

{{define "signup"}}{{template "head" "Create account"}}
  <h1 id="fxa-signup-header">Create a Firefox Account{{with .Relier}} <span class="service">Continue to {{.Name}}</span>{{end}}</h1>
  {{with .Error}}<p class="error">{{.}}</p>{{end}}
  <form method="post" action="{{.Action}}">
    <label>Email <input class="email" type="email" name="email" value="{{.Email}}" required></label>
    <label>Password <input class="password" type="password" name="password" minlength="8" required></label>
    {{if .ChooseWhatToSync}}<label><input id="customize-sync" type="checkbox" name="customize_sync" value="true"> Choose what to sync</label>{{end}}
    <button type="submit">Create account</button>
  </form>
  <p class="links"><a class="sign-in" href="{{.SignInURL}}">Already have an account? Sign in</a></p>
{{template "foot"}}{{end}}

{{define "confirm"}}{{template "head" "Confirm your account"}}
  <h1 id="fxa-confirm-header">Confirm your account</h1>
  <p>Check your email for a confirmation link sent to <strong>{{.Email}}</strong>.</p>
  {{if .Halted}}<p class="halted">You can close this tab.</p>{{else}}
  <p class="polling" data-status-url="{{.StatusURL}}">Waiting for confirmation.</p>{{end}}
{{template "foot"}}{{end}}

{{define "choose_what_to_sync"}}{{template "head" "Choose what to sync"}}
  <h1 id="fxa-choose-what-to-sync-header">Choose what to sync</h1>
  <p>Pick the data Firefox keeps in sync for <strong>{{.Email}}</strong>.</p>
  <form method="post" action="{{.Action}}">
    {{range .Engines}}<label><input type="checkbox" name="engines" value="{{.Name}}" checked> {{.Label}}</label>
    {{end}}<button type="submit">Start syncing</button>
  </form>
{{template "foot"}}{{end}}

{{define "complete"}}{{template "head" .Title}}
  <h1 id="fxa-{{.Endpoint}}-header">{{.Title}}</h1>
  <p>{{.Message}}</p>
{{template "foot"}}{{end}}

{{define "checkout"}}{{template "head" "Set up your subscription"}}
  <h1 id="fxa-checkout-header">{{.Plan.ProductName}}</h1>
  <p class="price">{{.Price}}</p>
  <form method="post" action="{{.Action}}" class="payment">
    <input type="hidden" name="submit_nonce" value="{{.Nonce}}">
    <label>Name as it appears on your card <input type="text" name="name" value="{{.Form.Name}}"></label>
    {{with index .Errors "name"}}<p class="error" data-field="name">{{.}}</p>{{end}}
    <input type="hidden" name="payment_token" value="{{.Form.PaymentToken}}">
    {{with index .Errors "card"}}<p class="error" data-field="card">{{.}}</p>{{end}}
    {{if .Form.ShowConfirm}}<label><input type="checkbox" name="confirm" value="true"{{if .Form.Confirmed}} checked{{end}}> <span data-l10n-id="{{.Legal.ID}}">{{.LegalHTML}}</span></label>
    {{with index .Errors "confirm"}}<p class="error" data-field="confirm">{{.}}</p>{{end}}{{end}}
    {{if .Form.ShowLegalLinks}}<p class="legal-links"><a href="https://www.mozilla.org/about/legal/terms/services/">Terms of Service</a> <a href="https://www.mozilla.org/privacy/firefox-private-network/">Privacy Notice</a></p>{{end}}
    <button type="submit"{{if .Submitted}} disabled{{end}}>Submit</button>
  </form>
  <p class="stripe-locale" data-locale="{{.StripeLocale}}"></p>
{{template "foot"}}{{end}}

{{define "subscription_success"}}<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta http-equiv="refresh" content="5; url={{.RedirectURL}}">
  <title>Subscription confirmed - Firefox Accounts</title>
</head>
<body><main>
  <h1 id="fxa-subscription-success-header">Your subscription is ready</h1>
  <p>Thanks for subscribing to {{.ProductName}}. Taking you there now.</p>
  <p><a class="download" href="{{.RedirectURL}}">Continue</a></p>
</main></body>
</html>{{end}}

{{define "error"}}{{template "head" "Error"}}
  <h1>{{.Title}}</h1>
  <p class="error">{{.Message}}</p>
{{template "foot"}}{{end}}
`

var templates = template.Must(template.New("pages").Parse(pageTemplates))

type errorPage struct {
	Title   string
	Message string
}

// render executes a page template into a buffer first so a template error
// never leaves a half-written response.
func (a *App) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		a.Logger.Error("render template", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (a *App) renderError(w http.ResponseWriter, status int, message string) {
	a.render(w, status, "error", errorPage{Title: http.StatusText(status), Message: message})
}
