package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "fxa_session"

// sessionClaims is the payload of the signed session cookie.
type sessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionManager handles cookie-backed sessions. The cookie holds an HS256
// token naming the server-side session; everything else stays in the store.
type SessionManager struct {
	store    *InMemoryStore
	logger   *slog.Logger
	ttl      time.Duration
	secret   []byte
	secure   bool
	sameSite http.SameSite
	path     string
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config, store *InMemoryStore, logger *slog.Logger) *SessionManager {
	sameSite := http.SameSiteStrictMode
	if cfg.DevMode() {
		sameSite = http.SameSiteLaxMode
	}
	return &SessionManager{
		store:    store,
		logger:   logger,
		ttl:      cfg.Server.SessionTTL,
		secret:   []byte(cfg.Server.Session),
		secure:   !cfg.DevMode(),
		sameSite: sameSite,
		path:     cfg.BaseURL,
	}
}

// Fetch returns the session associated with the request cookie if present.
// Missing, tampered or expired cookies yield a nil session and no error.
func (sm *SessionManager) Fetch(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, nil
	}
	sid, err := sm.parse(cookie.Value)
	if err != nil {
		sm.logger.Debug("session cookie rejected", "error", err)
		return nil, nil
	}
	sess, ok := sm.store.GetSession(sid)
	if !ok {
		return nil, nil
	}
	if time.Now().After(sess.ExpiresAt) {
		sm.store.DeleteSession(sess.ID)
		return nil, nil
	}
	return &sess, nil
}

// Ensure returns the current session, creating an anonymous one when needed.
func (sm *SessionManager) Ensure(w http.ResponseWriter, r *http.Request) (*Session, error) {
	sess, err := sm.Fetch(r)
	if err != nil || sess != nil {
		return sess, err
	}
	return sm.Create(w)
}

// Create establishes a new session and sets the cookie.
func (sm *SessionManager) Create(w http.ResponseWriter) (*Session, error) {
	now := time.Now()
	sess := Session{
		ID:        sm.store.NewID(),
		CreatedAt: now,
		ExpiresAt: now.Add(sm.ttl),
	}

	token, err := sm.sign(sess)
	if err != nil {
		return nil, err
	}
	sm.store.SaveSession(sess)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     sm.path,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return &sess, nil
}

// Save persists changes made to a session.
func (sm *SessionManager) Save(sess *Session) {
	sm.store.SaveSession(*sess)
}

// Clear removes the session and its cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter, sess *Session) {
	if sess != nil {
		sm.store.DeleteSession(sess.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     sm.path,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   -1,
	})
}

func (sm *SessionManager) sign(sess Session) (string, error) {
	claims := sessionClaims{
		SID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

func (sm *SessionManager) parse(raw string) (string, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if claims.SID == "" {
		return "", errors.New("session cookie missing sid")
	}
	return claims.SID, nil
}
