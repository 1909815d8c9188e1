package engine

import (
	"testing"
	"time"
)

func TestValidateSession_slidingExpiry(t *testing.T) {
	ttl := 10 * time.Minute
	env := newTestEngine(t, Config{SessionTTL: ttl}, unknownCodecs())

	res, err := env.eng.IssueSession("v1", "10.0.0.1", false)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	// Each validation inside the window extends validity by a full TTL.
	env.clock.advance(ttl - time.Minute)
	if _, err := env.eng.ValidateSession(res.Token, "10.0.0.1"); err != nil {
		t.Fatalf("validate before expiry: %v", err)
	}
	env.clock.advance(ttl - time.Minute)
	if _, err := env.eng.ValidateSession(res.Token, "10.0.0.1"); err != nil {
		t.Fatalf("validate after refresh: %v", err)
	}

	// Let the full window lapse without any access.
	env.clock.advance(ttl + time.Second)
	if _, err := env.eng.ValidateSession(res.Token, "10.0.0.1"); err != ErrSessionInvalid {
		t.Errorf("expected ErrSessionInvalid after TTL lapse, got %v", err)
	}
}

func TestValidateSession_unknownToken(t *testing.T) {
	env := newTestEngine(t, Config{}, unknownCodecs())
	if _, err := env.eng.ValidateSession("deadbeef", "10.0.0.1"); err != ErrSessionInvalid {
		t.Errorf("expected ErrSessionInvalid, got %v", err)
	}
	if _, err := env.eng.ValidateSession("", "10.0.0.1"); err != ErrMissingToken {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestValidateSession_originPinning(t *testing.T) {
	env := newTestEngine(t, Config{PinOrigin: true}, unknownCodecs())

	res, err := env.eng.IssueSession("v1", "10.0.0.1", false)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}

	if _, err := env.eng.ValidateSession(res.Token, "10.0.0.2"); err != ErrSessionInvalid {
		t.Errorf("foreign origin must be rejected regardless of TTL, got %v", err)
	}
	if _, err := env.eng.ValidateSession(res.Token, "10.0.0.1"); err != nil {
		t.Errorf("issuing origin must stay valid: %v", err)
	}
}

func TestValidateSession_pinningDisabled(t *testing.T) {
	env := newTestEngine(t, Config{PinOrigin: false}, unknownCodecs())

	res, err := env.eng.IssueSession("v1", "10.0.0.1", false)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := env.eng.ValidateSession(res.Token, "10.0.0.2"); err != nil {
		t.Errorf("with pinning off any origin is accepted: %v", err)
	}
}

func TestNewToken_uniqueAndOpaque(t *testing.T) {
	a, err := newToken()
	if err != nil {
		t.Fatalf("newToken: %v", err)
	}
	b, err := newToken()
	if err != nil {
		t.Fatalf("newToken: %v", err)
	}
	if a == b {
		t.Error("tokens must be unique")
	}
	if len(a) != tokenBytes*2 {
		t.Errorf("expected %d hex chars, got %d", tokenBytes*2, len(a))
	}
}
