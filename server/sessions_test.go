package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestSessions(t *testing.T, env string) *SessionManager {
	t.Helper()
	cfg := testConfig()
	cfg.Env = env
	return NewSessionManager(cfg, NewInMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func requestWith(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestSessionCreateSetsCookie(t *testing.T) {
	sm := newTestSessions(t, EnvTest)
	rec := httptest.NewRecorder()

	sess, err := sm.Create(rec)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("expected %s cookie, got %+v", sessionCookieName, cookies)
	}
	c := cookies[0]
	if !c.HttpOnly || c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected dev cookie attributes: %+v", c)
	}

	got, err := sm.Fetch(requestWith(c))
	if err != nil || got == nil {
		t.Fatalf("expected session back, got %v, %v", got, err)
	}
	if got.ID != sess.ID {
		t.Fatalf("expected session %s, got %s", sess.ID, got.ID)
	}
}

func TestSessionCookieStrictOutsideDev(t *testing.T) {
	sm := newTestSessions(t, EnvProduction)
	rec := httptest.NewRecorder()
	if _, err := sm.Create(rec); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	c := rec.Result().Cookies()[0]
	if !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected secure strict cookie, got %+v", c)
	}
}

func TestSessionTamperedCookieIgnored(t *testing.T) {
	sm := newTestSessions(t, EnvTest)
	rec := httptest.NewRecorder()
	if _, err := sm.Create(rec); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	c := rec.Result().Cookies()[0]
	c.Value += "x"

	sess, err := sm.Fetch(requestWith(c))
	if err != nil || sess != nil {
		t.Fatalf("expected no session for tampered cookie, got %v, %v", sess, err)
	}
}

func TestSessionForeignSecretIgnored(t *testing.T) {
	sm := newTestSessions(t, EnvTest)
	store := sm.store
	store.SaveSession(Session{ID: "sid-1", ExpiresAt: time.Now().Add(time.Hour)})

	claims := sessionClaims{
		SID: "sid-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	sess, _ := sm.Fetch(requestWith(&http.Cookie{Name: sessionCookieName, Value: forged}))
	if sess != nil {
		t.Fatal("expected forged cookie to be rejected")
	}
}

func TestSessionExpiredTokenIgnored(t *testing.T) {
	sm := newTestSessions(t, EnvTest)
	sess := Session{ID: "sid-2", CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour)}
	sm.store.SaveSession(sess)
	token, err := sm.sign(sess)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, _ := sm.Fetch(requestWith(&http.Cookie{Name: sessionCookieName, Value: token}))
	if got != nil {
		t.Fatal("expected expired cookie to be rejected")
	}
}

func TestSessionClearExpiresCookie(t *testing.T) {
	sm := newTestSessions(t, EnvTest)
	rec := httptest.NewRecorder()
	sess, err := sm.Create(rec)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	c := rec.Result().Cookies()[0]

	out := httptest.NewRecorder()
	sm.Clear(out, sess)
	cleared := out.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected expiring cookie, got %+v", cleared)
	}
	if got, _ := sm.Fetch(requestWith(c)); got != nil {
		t.Fatal("expected session to be deleted")
	}
}
