package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef")

func newTestTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(JWTConfig{Issuer: "records", SigningKey: testKey, TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewTokenManager(t *testing.T) {
	if _, err := NewTokenManager(JWTConfig{}); err == nil {
		t.Error("expected error for empty signing key")
	}
	m, err := NewTokenManager(JWTConfig{SigningKey: testKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.cfg.TTL != DefaultTokenTTL {
		t.Errorf("expected default ttl, got %s", m.cfg.TTL)
	}
}

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := newTestTokenManager(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return now }

	tok, exp, err := m.Issue("a@x", "patient")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("expected expiry %s, got %s", now.Add(time.Hour), exp)
	}

	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "a@x" || claims.Role != "patient" || claims.Issuer != "records" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestTokenManager_ParseRejects(t *testing.T) {
	m := newTestTokenManager(t)
	valid, _, _ := m.Issue("a@x", "patient")

	other, _ := NewTokenManager(JWTConfig{Issuer: "records", SigningKey: []byte("another-signing-key")})
	wrongKey, _, _ := other.Issue("a@x", "patient")

	otherIssuer, _ := NewTokenManager(JWTConfig{Issuer: "elsewhere", SigningKey: testKey})
	wrongIssuer, _, _ := otherIssuer.Issue("a@x", "patient")

	expiredMgr := newTestTokenManager(t)
	expiredMgr.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := expiredMgr.Issue("a@x", "patient")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "a@x", Issuer: "records",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role: "admin",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not.a.token",
		"tampered":     valid + "x",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Parse(tok); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestTokenManager_Revoke(t *testing.T) {
	m := newTestTokenManager(t)
	tok, _, _ := m.Issue("a@x", "patient")
	keep, _, _ := m.Issue("a@x", "patient")

	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m.Revoke(claims)

	if _, err := m.Parse(tok); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}
	if _, err := m.Parse(keep); err != nil {
		t.Errorf("other tokens must stay valid: %v", err)
	}

	m.Revoke(nil)
	if m.Revocations().Count() != 1 {
		t.Errorf("expected one revocation, got %d", m.Revocations().Count())
	}
}

func TestRevocationStore_Cleanup(t *testing.T) {
	s := NewRevocationStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Revoke("old", now.Add(-time.Minute))
	s.Revoke("fresh", now.Add(time.Minute))
	s.Revoke("", now.Add(time.Minute))

	s.cleanup()

	if s.IsRevoked("old") {
		t.Error("expired entry should be dropped")
	}
	if !s.IsRevoked("fresh") {
		t.Error("unexpired entry should be kept")
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", s.Count())
	}
}
