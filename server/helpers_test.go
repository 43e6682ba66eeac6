package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"accountsd/broker"
	"accountsd/channel"
	"accountsd/client"
	"accountsd/payments"
)

const (
	testClientID    = "dcdb5ae7add825d2"
	testClientName  = "123Done"
	testRedirectURI = "https://123done.example/api/oauth"
	testPassword    = "password"
)

type fakeAccounts struct {
	mu        sync.Mutex
	verified  map[string]bool
	known     map[string]bool
	statusErr error
	existsErr error
	resent    []string
	signUps   []string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{verified: map[string]bool{}, known: map[string]bool{}}
}

func (f *fakeAccounts) account(email string) broker.Account {
	return broker.Account{
		Email:         email,
		UID:           "uid-" + email,
		SessionToken:  "st-" + email,
		KeyFetchToken: "kft",
		UnwrapBKey:    "ubk",
		Verified:      f.verified[email],
	}
}

func (f *fakeAccounts) SignIn(ctx context.Context, email, password string) (broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[email] || password != testPassword {
		return broker.Account{}, &client.APIError{Status: http.StatusUnauthorized, Errno: 103, Message: "Incorrect password"}
	}
	return f.account(email), nil
}

func (f *fakeAccounts) SignUp(ctx context.Context, email, password string) (broker.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known[email] {
		return broker.Account{}, &client.APIError{Status: http.StatusBadRequest, Errno: 101, Message: "Account already exists"}
	}
	f.known[email] = true
	f.signUps = append(f.signUps, email)
	return f.account(email), nil
}

func (f *fakeAccounts) SignUpResend(ctx context.Context, sessionToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resent = append(f.resent, sessionToken)
	return nil
}

func (f *fakeAccounts) RecoveryEmailStatus(ctx context.Context, sessionToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, f.statusErr
	}
	email := strings.TrimPrefix(sessionToken, "st-")
	return f.verified[email], nil
}

func (f *fakeAccounts) AccountExists(ctx context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.known[email], nil
}

type fakeOAuth struct {
	mu       sync.Mutex
	requests []client.AuthorizationRequest
	redirect string
	err      error
}

func (f *fakeOAuth) Authorize(ctx context.Context, sessionToken string, req client.AuthorizationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if f.redirect != "" {
		return f.redirect, nil
	}
	return testRedirectURI + "?" + url.Values{"code": {"code-1"}, "state": {req.State}}.Encode(), nil
}

type fakeSubscriptions struct {
	mu       sync.Mutex
	requests []client.SubscriptionRequest
	err      error
}

func (f *fakeSubscriptions) CreateSubscription(ctx context.Context, req client.SubscriptionRequest) (client.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return client.Subscription{}, f.err
	}
	return client.Subscription{SubscriptionID: "sub_1", PlanID: req.PlanID, Status: "active"}, nil
}

type fakeConsole struct {
	nonce string
	user  ConsoleUser
	err   error
}

func (f *fakeConsole) AuthCodeURL(state, nonce string) string {
	return "https://oauth.example/v1/authorization?" + url.Values{"state": {state}, "nonce": {nonce}}.Encode()
}

func (f *fakeConsole) Exchange(ctx context.Context, code, expectedNonce string) (ConsoleUser, error) {
	f.nonce = expectedNonce
	if f.err != nil {
		return ConsoleUser{}, f.err
	}
	if code != "good-code" {
		return ConsoleUser{}, errors.New("invalid code")
	}
	return f.user, nil
}

type testDeps struct {
	accounts *fakeAccounts
	oauth    *fakeOAuth
	subs     *fakeSubscriptions
	console  *fakeConsole
	channel  *channel.Recorder
}

func testPlan() payments.Plan {
	return payments.Plan{
		PlanID:        "plan_123",
		ProductID:     "prod_vpn",
		ProductName:   "Firefox Private Network",
		Currency:      "usd",
		Amount:        500,
		Interval:      payments.IntervalMonth,
		IntervalCount: 1,
		Metadata:      map[string]string{},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Env = EnvTest
	cfg.Server.Session = "test-session-secret"
	cfg.RelyingParties = []RelyingPartyConfig{{
		ClientID:    testClientID,
		Name:        testClientName,
		RedirectURI: testRedirectURI,
	}}
	cfg.Payments.Plans = []payments.Plan{testPlan()}
	cfg.Payments.ProductRedirectURLs = map[string]string{"prod_vpn": "https://vpn.example/welcome"}
	cfg.Metrics.Enabled = true
	return cfg
}

func setupTestApp(t *testing.T, mutate ...func(*Config)) (*App, *testDeps) {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	deps := &testDeps{
		accounts: newFakeAccounts(),
		oauth:    &fakeOAuth{},
		subs:     &fakeSubscriptions{},
		console:  &fakeConsole{user: ConsoleUser{Subject: "uid-dev", Email: "dev@example.com", Name: "Dev"}},
		channel:  channel.NewRecorder(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := NewApp(context.Background(), cfg, logger, Deps{
		Channel:       deps.channel,
		Accounts:      deps.accounts,
		OAuth:         deps.oauth,
		Subscriptions: deps.subs,
		Console:       deps.console,
	})
	if err != nil {
		t.Fatalf("NewApp returned error: %v", err)
	}
	return app, deps
}

// browser replays cookies between requests against a handler.
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, app *App) *browser {
	return &browser{t: t, handler: app.Routes(), cookies: map[string]*http.Cookie{}}
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, target, nil)
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, target, form)
}

func (b *browser) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

// signIn registers a verified account and signs it in through the broker pages.
func (b *browser) signIn(deps *testDeps, email string) {
	b.t.Helper()
	deps.accounts.known[email] = true
	deps.accounts.verified[email] = true
	rec := b.post("/signin", url.Values{"email": {email}, "password": {testPassword}})
	if rec.Code != http.StatusFound {
		b.t.Fatalf("sign in failed: %d %s", rec.Code, rec.Body.String())
	}
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, status int, location string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}
