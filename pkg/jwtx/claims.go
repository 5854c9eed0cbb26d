// Package jwtx implements the signed-token layer: claim model, invariants,
// and HS256 signing/verification with a shared symmetric secret.
package jwtx

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates the three token kinds the gateway issues.
type TokenType string

const (
	TokenTypeBootstrap TokenType = "bootstrap"
	TokenTypeAccess    TokenType = "access"
	TokenTypeRefresh   TokenType = "refresh"
)

// BootstrapKeyID is the distinguished identity of the statically configured
// bootstrap credential. It never exists in the credential store.
const BootstrapKeyID = -1

// ScopeKeysManage is the scope exclusive to bootstrap tokens. It gates key
// creation and revocation and must never appear on a general token.
const ScopeKeysManage = "keys:manage"

// Token lifetimes per kind.
const (
	BootstrapTokenTTL = 10 * time.Minute
	AccessTokenTTL    = 15 * time.Minute
	RefreshTokenTTL   = 30 * 24 * time.Hour
)

// TTL returns the lifetime for a token of type t.
func (t TokenType) TTL() time.Duration {
	switch t {
	case TokenTypeBootstrap:
		return BootstrapTokenTTL
	case TokenTypeRefresh:
		return RefreshTokenTTL
	default:
		return AccessTokenTTL
	}
}

// Claims are the signed token claims. They carry no jti or nonce: signing
// identical claims with the same secret reproduces the same token.
type Claims struct {
	// Owner names the service or user holding the underlying credential.
	Owner string `json:"owner"`

	// KeyID is the credential's identity id, BootstrapKeyID for the
	// bootstrap credential.
	KeyID int `json:"key_id"`

	// Scopes in category:verb form.
	Scopes []string `json:"scopes"`

	// TokenType is bootstrap, access or refresh.
	TokenType TokenType `json:"token_type"`

	jwt.RegisteredClaims
}

var (
	ErrInvalidKeyID         = errors.New("jwtx: key id below bootstrap sentinel")
	ErrBootstrapConstraints = errors.New("jwtx: bootstrap claims require key id -1 and exactly the keys:manage scope")
	ErrGeneralConstraints   = errors.New("jwtx: general claims require key id >= 0 and must not carry keys:manage")
)

// NewClaims builds claims issued at now with the kind-specific expiry.
func NewClaims(owner string, keyID int, scopes []string, kind TokenType, now time.Time) Claims {
	return Claims{
		Owner:     owner,
		KeyID:     keyID,
		Scopes:    scopes,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(kind.TTL())),
		},
	}
}

// Validate enforces the claim invariants. Bootstrap claims must carry key id
// -1 and the keys:manage scope alone; access and refresh claims must carry a
// persisted key id and never keys:manage. Anything below -1 is always
// rejected.
func (c Claims) Validate() error {
	if c.KeyID < BootstrapKeyID {
		return fmt.Errorf("%w: %d", ErrInvalidKeyID, c.KeyID)
	}

	if c.TokenType == TokenTypeBootstrap {
		if c.KeyID != BootstrapKeyID {
			return ErrBootstrapConstraints
		}
		if len(c.Scopes) != 1 || c.Scopes[0] != ScopeKeysManage {
			return ErrBootstrapConstraints
		}
		return nil
	}

	if c.KeyID < 0 {
		return ErrGeneralConstraints
	}
	if slices.Contains(c.Scopes, ScopeKeysManage) {
		return ErrGeneralConstraints
	}
	return nil
}

// HasScopes reports whether every required scope is present (AND semantics).
func (c Claims) HasScopes(required ...string) bool {
	for _, want := range required {
		if !slices.Contains(c.Scopes, want) {
			return false
		}
	}
	return true
}
