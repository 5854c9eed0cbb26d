// Package sqlite is the SQLite-backed Store driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kohakuhq/kohaku/internal/server/store"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs so unregistering a code cascades to its subscriptions.
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) APIKeys() store.APIKeys { return &apiKeysRepo{db: s.db} }

func (s *Store) NotificationCodes() store.NotificationCodes { return &codesRepo{db: s.db} }

func (s *Store) NotificationTargets() store.NotificationTargets { return &targetsRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
