package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps ephemeral state for sessions and checkout nonces.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	nonces   map[string]time.Time
}

// NewInMemoryStore constructs the store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]Session),
		nonces:   make(map[string]time.Time),
	}
}

// NewID generates a random identifier.
func (s *InMemoryStore) NewID() string {
	return uuid.NewString()
}

// SaveSession stores or replaces a session. The store keeps its own copy.
func (s *InMemoryStore) SaveSession(sess Session) {
	stored := sess.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = stored
}

// GetSession retrieves a copy of the session by ID; changes only land
// through SaveSession.
func (s *InMemoryStore) GetSession(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// DeleteSession removes a session.
func (s *InMemoryStore) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// IssueNonce records a single-use submit nonce valid for ttl.
func (s *InMemoryStore) IssueNonce(ttl time.Duration) string {
	nonce := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = time.Now().Add(ttl)
	return nonce
}

// ConsumeNonce removes the nonce and reports whether it was still valid.
// A second call with the same nonce always returns false.
func (s *InMemoryStore) ConsumeNonce(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.nonces[nonce]
	if !ok {
		return false
	}
	delete(s.nonces, nonce)
	return time.Now().Before(expiry)
}

// Sweep drops expired sessions and nonces.
func (s *InMemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	for nonce, expiry := range s.nonces {
		if now.After(expiry) {
			delete(s.nonces, nonce)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *InMemoryStore) RunSweeper(ctx context.Context, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now); removed > 0 {
				logger.Debug("expired state swept", "removed", removed)
			}
		}
	}
}
