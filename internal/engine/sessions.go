package engine

import (
	"crypto/rand"
	"encoding/hex"
)

const tokenBytes = 32

// newToken returns a random, unguessable session token. Tokens are opaque and
// carry no relation to the video identity.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateSession checks a token and, when origin pinning is enabled, the
// caller's origin against the one recorded at issuance. Every successful
// validation slides the expiry window forward by a full TTL.
func (e *Engine) ValidateSession(token, origin string) (Session, error) {
	if token == "" {
		return Session{}, ErrMissingToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[token]
	if !ok {
		return Session{}, ErrSessionInvalid
	}
	if e.now().After(s.ExpiresAt) {
		delete(e.sessions, token)
		return Session{}, ErrSessionInvalid
	}
	if e.cfg.PinOrigin && origin != s.Origin {
		e.log.Warn("origin mismatch on session validation")
		return Session{}, ErrSessionInvalid
	}

	s.ExpiresAt = e.now().Add(e.cfg.SessionTTL)
	return *s, nil
}
