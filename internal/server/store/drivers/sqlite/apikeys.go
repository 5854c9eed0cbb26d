package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
)

type apiKeysRepo struct {
	db *sql.DB
}

func (r *apiKeysRepo) CreateAPIKey(ctx context.Context, k domain.APIKey) (domain.APIKey, error) {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (hashed_key, key_prefix, owner, scopes, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		k.HashedKey, k.KeyPrefix, k.Owner, strings.Join(k.Scopes, " "), k.CreatedAt,
	)
	if err != nil {
		return domain.APIKey{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.APIKey{}, err
	}
	k.ID = int(id)
	return k, nil
}

func (r *apiKeysRepo) FindAPIKeys(ctx context.Context, filter store.APIKeyFilter) ([]domain.APIKey, error) {
	if filter.IsZero() {
		return nil, store.ErrMissingFilter
	}

	query := `SELECT id, hashed_key, key_prefix, owner, scopes, created_at FROM api_keys WHERE 1=1`
	var args []any
	if filter.ID != nil {
		query += ` AND id = ?`
		args = append(args, *filter.ID)
	}
	if filter.Prefix != nil {
		query += ` AND key_prefix = ?`
		args = append(args, *filter.Prefix)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var scopes string
		if err := rows.Scan(&k.ID, &k.HashedKey, &k.KeyPrefix, &k.Owner, &scopes, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Scopes = splitScopes(scopes)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *apiKeysRepo) DeleteAPIKeys(ctx context.Context, filter store.APIKeyFilter) error {
	if filter.IsZero() {
		return store.ErrMissingFilter
	}

	query := `DELETE FROM api_keys WHERE 1=1`
	var args []any
	if filter.ID != nil {
		query += ` AND id = ?`
		args = append(args, *filter.ID)
	}
	if filter.Prefix != nil {
		query += ` AND key_prefix = ?`
		args = append(args, *filter.Prefix)
	}

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func splitScopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
