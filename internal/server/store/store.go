// Package store defines the data access interfaces. Concrete drivers
// (sqlite) implement Store; services only ever see these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrMissingFilter reports a lookup or delete called without any
	// filter, which would otherwise touch the whole table.
	ErrMissingFilter = errors.New("store: at least one filter must be set")
)

// Store is the root data access interface.
type Store interface {
	APIKeys() APIKeys
	NotificationCodes() NotificationCodes
	NotificationTargets() NotificationTargets

	ApplyMigrations() error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// APIKeyFilter narrows lookups. ID matches at most one record; Prefix can
// match several since prefixes are not unique.
type APIKeyFilter struct {
	ID     *int
	Prefix *string
}

// IsZero reports whether no filter field is set.
func (f APIKeyFilter) IsZero() bool { return f.ID == nil && f.Prefix == nil }

type APIKeys interface {
	// CreateAPIKey inserts a record and returns it with the assigned id.
	CreateAPIKey(ctx context.Context, k domain.APIKey) (domain.APIKey, error)

	// FindAPIKeys returns all records matching the filter. An empty
	// filter yields ErrMissingFilter.
	FindAPIKeys(ctx context.Context, filter APIKeyFilter) ([]domain.APIKey, error)

	// DeleteAPIKeys removes all records matching the filter. An empty
	// filter yields ErrMissingFilter. Deleting nothing is not an error.
	DeleteAPIKeys(ctx context.Context, filter APIKeyFilter) error
}

type NotificationCodes interface {
	// RegisterCode inserts a new topic code.
	RegisterCode(ctx context.Context, c domain.NotificationCode) error

	// GetCode returns one code or ErrNotFound.
	GetCode(ctx context.Context, code string) (domain.NotificationCode, error)

	// ListCodes returns every registered code.
	ListCodes(ctx context.Context) ([]domain.NotificationCode, error)

	// TouchCode bumps last_used to now.
	TouchCode(ctx context.Context, code string) error

	// UnregisterCode removes a code; subscriptions cascade.
	UnregisterCode(ctx context.Context, code string) error

	// DeleteStaleCodes removes codes unused since the cutoff and returns
	// how many were dropped.
	DeleteStaleCodes(ctx context.Context, unusedSince time.Time) (int64, error)
}

// TargetFilter narrows subscription lookups; nil fields are ignored.
type TargetFilter struct {
	Code      *string
	ChannelID *int64
	GuildID   *int64
}

type NotificationTargets interface {
	// Subscribe inserts a subscription and returns it with the assigned id.
	Subscribe(ctx context.Context, t domain.NotificationTarget) (domain.NotificationTarget, error)

	// FindTargets returns subscriptions matching the filter. An empty
	// filter returns all subscriptions.
	FindTargets(ctx context.Context, filter TargetFilter) ([]domain.NotificationTarget, error)

	// Unsubscribe removes the subscription for (code, channel, guild).
	Unsubscribe(ctx context.Context, code string, channelID, guildID int64) error
}
