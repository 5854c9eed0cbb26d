// Package cryptox provides API key generation, hashing and verification.
package cryptox

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// KeyTag is the literal tag every generated key starts with.
const KeyTag = "khk_"

// Charset is the alphabet used for the random portion of API keys.
const Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&*+-/="

const (
	prefixRandLen = 6
	secretRandLen = 31

	// FullKeyLength is tag + 6 + "_" + 31.
	FullKeyLength = len(KeyTag) + prefixRandLen + 1 + secretRandLen
	// PrefixLength is tag + 6.
	PrefixLength = len(KeyTag) + prefixRandLen
)

// GenerateKey returns a new API key and its lookup prefix. The full key is
// 42 characters, the prefix 10, and the full key always starts with the
// prefix. The prefix is stored alongside the hash for candidate lookup; it
// is deliberately not unique.
func GenerateKey() (fullKey, prefix string, err error) {
	head, err := RandomString(prefixRandLen)
	if err != nil {
		return "", "", err
	}
	secret, err := RandomString(secretRandLen)
	if err != nil {
		return "", "", err
	}

	prefix = KeyTag + head
	return prefix + "_" + secret, prefix, nil
}

// RandomString returns n characters drawn from Charset using crypto/rand.
func RandomString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(Charset)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("cryptox: random source failed: %w", err)
		}
		out[i] = Charset[idx.Int64()]
	}
	return string(out), nil
}

// ExtractPrefix returns the lookup prefix of key. Keys have the shape
// khk_XXXXXX_XXXX...; the prefix ends before the second underscore.
func ExtractPrefix(key string) (string, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 {
		return "", fmt.Errorf("cryptox: API key should have 3 parts but had %d", len(parts))
	}
	return parts[0] + "_" + parts[1], nil
}
