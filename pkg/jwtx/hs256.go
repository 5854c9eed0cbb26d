package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature, malformed
// payload, or expiry. Callers deliberately cannot tell these apart.
var ErrInvalidToken = errors.New("jwtx: invalid token")

// HS256 signs and verifies tokens with a shared symmetric secret.
type HS256 struct {
	secret []byte
}

// NewHS256 creates a signer/verifier from the shared secret.
func NewHS256(secret []byte) (*HS256, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: empty signing secret")
	}
	return &HS256{secret: secret}, nil
}

// Sign serializes and signs the claims. The output is deterministic for
// identical claims and secret.
func (s *HS256) Sign(claims Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return token, nil
}

// Verify checks the signature and expiry and returns the parsed claims.
// All failure modes collapse into ErrInvalidToken.
func (s *HS256) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
