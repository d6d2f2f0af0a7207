package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Sessions is an in-memory session-token store. It is owned by the server
// instance and torn down with it; tokens do not survive a restart.
type Sessions struct {
	mu     sync.RWMutex
	tokens map[string]time.Time
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{
		tokens: make(map[string]time.Time),
	}
}

// Create mints a new session token and records it as active.
func (s *Sessions) Create() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken.
		panic("auth: cannot read random bytes: " + err.Error())
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	s.tokens[token] = time.Now()
	s.mu.Unlock()
	return token
}

// Verify reports whether token is an active session.
func (s *Sessions) Verify(token string) bool {
	if token == "" {
		return false
	}
	s.mu.RLock()
	_, ok := s.tokens[token]
	s.mu.RUnlock()
	return ok
}

// Revoke removes a token. Revoking an unknown token is a no-op.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Count reports the number of active sessions.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// VerifyPassword checks a login attempt against the configured secret.
// The secret may be a bcrypt hash (recognized by its prefix) or a plain
// value compared in constant time.
func VerifyPassword(attempt, secret string) bool {
	if secret == "" {
		return false
	}
	if strings.HasPrefix(secret, "$2a$") || strings.HasPrefix(secret, "$2b$") || strings.HasPrefix(secret, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(attempt)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(attempt), []byte(secret)) == 1
}
