package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Kept in line with the OWASP baseline for interactive
// logins; the hash string records them so they can change without breaking
// stored hashes.
const (
	saltLength  = 16
	iterations  = 3
	memory      = 64 * 1024
	parallelism = 2
	keyLength   = 32
)

// ErrMalformedHash reports a hash string that could not be parsed. It is
// distinct from a clean verification mismatch, which is not an error.
var ErrMalformedHash = errors.New("cryptox: malformed argon2 hash")

// HashKey hashes an API key with Argon2id and a fresh random salt, returning
// a PHC-format string. Two calls on the same key produce different strings
// that both verify.
func HashKey(key string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: salt generation failed: %w", err)
	}

	hash := argon2.IDKey([]byte(key), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyKey reports whether key matches the PHC-encoded hash. A well-formed
// hash that simply does not match yields (false, nil); a hash string that
// cannot be parsed yields an error wrapping ErrMalformedHash. Callers must
// not conflate the two.
func VerifyKey(key, encodedHash string) (bool, error) {
	salt, expected, params, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(key),
		salt,
		params.iterations,
		params.memory,
		params.parallelism,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

type hashParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// decodeHash parses "$argon2id$v=19$m=X,t=Y,p=Z$salt$hash".
func decodeHash(encoded string) ([]byte, []byte, hashParams, error) {
	var params hashParams

	parts := make([]string, 0, 6)
	start := 0
	for i := 0; i < len(encoded); i++ {
		if encoded[i] == '$' {
			parts = append(parts, encoded[start:i])
			start = i + 1
		}
	}
	parts = append(parts, encoded[start:])

	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("%w: expected 6 segments, got %d", ErrMalformedHash, len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("%w: unexpected variant %q", ErrMalformedHash, parts[1])
	}
	if parts[2] != "v=19" {
		return nil, nil, params, fmt.Errorf("%w: unexpected version %q", ErrMalformedHash, parts[2])
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.memory, &params.iterations, &params.parallelism); err != nil {
		return nil, nil, params, fmt.Errorf("%w: bad parameter segment: %v", ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("%w: bad salt encoding: %v", ErrMalformedHash, err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("%w: bad hash encoding: %v", ErrMalformedHash, err)
	}

	return salt, hash, params, nil
}
