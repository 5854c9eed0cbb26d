// Package domain holds the entity types shared between services and the
// store.
package domain

import "time"

// APIKey is a persisted credential record. Only the Argon2 hash of the raw
// key is ever stored; the raw key exists once, in the create response.
type APIKey struct {
	// ID is the serial primary key assigned by the store. It doubles as
	// the identity id carried in token claims and registry entries.
	ID int

	// HashedKey is the PHC-encoded Argon2id hash of the full key.
	HashedKey string

	// KeyPrefix is the 10-char lookup prefix. Not unique: several records
	// may share it, verification picks the matching one.
	KeyPrefix string

	// Owner names the service or user holding this key.
	Owner string

	// Scopes in category:verb form.
	Scopes []string

	CreatedAt time.Time
}
