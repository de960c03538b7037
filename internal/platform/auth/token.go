package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL applies when a TokenManager is built with a zero TTL.
const DefaultTokenTTL = time.Hour

var ErrTokenRevoked = errors.New("token revoked")

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
	TTL        time.Duration
}

// TokenManager issues and verifies HS256 session tokens. Logged out tokens
// are kept in a RevocationStore until they expire.
type TokenManager struct {
	cfg     JWTConfig
	now     func() time.Time
	revoked *RevocationStore
}

func NewTokenManager(cfg JWTConfig) (*TokenManager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("jwt signing key is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	return &TokenManager{cfg: cfg, now: time.Now, revoked: NewRevocationStore()}, nil
}

// Revocations exposes the store so the caller can run its cleanup loop.
func (m *TokenManager) Revocations() *RevocationStore {
	return m.revoked
}

// Issue signs a token for subject with the given role and returns it with
// its expiry.
func (m *TokenManager) Issue(subject, role string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies signature, expiry, issuer and revocation and returns the
// claims.
func (m *TokenManager) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	if m.revoked.IsRevoked(claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke invalidates the token described by claims for the rest of its
// lifetime.
func (m *TokenManager) Revoke(claims *Claims) {
	if claims == nil {
		return
	}
	exp := m.now().Add(m.cfg.TTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	m.revoked.Revoke(claims.ID, exp)
}
