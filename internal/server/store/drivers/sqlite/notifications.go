package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kohakuhq/kohaku/internal/server/domain"
	"github.com/kohakuhq/kohaku/internal/server/store"
)

type codesRepo struct {
	db *sql.DB
}

func (r *codesRepo) RegisterCode(ctx context.Context, c domain.NotificationCode) error {
	if c.LastUsed.IsZero() {
		c.LastUsed = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_codes (code, last_used, description) VALUES (?, ?, ?)`,
		c.Code, c.LastUsed, c.Description,
	)
	return err
}

func (r *codesRepo) GetCode(ctx context.Context, code string) (domain.NotificationCode, error) {
	var c domain.NotificationCode
	err := r.db.QueryRowContext(ctx,
		`SELECT code, last_used, description FROM notification_codes WHERE code = ?`, code,
	).Scan(&c.Code, &c.LastUsed, &c.Description)
	if err != nil {
		return domain.NotificationCode{}, mapNotFound(err)
	}
	return c, nil
}

func (r *codesRepo) ListCodes(ctx context.Context) ([]domain.NotificationCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, last_used, description FROM notification_codes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NotificationCode
	for rows.Next() {
		var c domain.NotificationCode
		if err := rows.Scan(&c.Code, &c.LastUsed, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *codesRepo) TouchCode(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notification_codes SET last_used = ? WHERE code = ?`,
		time.Now().UTC(), code,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *codesRepo) UnregisterCode(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_codes WHERE code = ?`, code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *codesRepo) DeleteStaleCodes(ctx context.Context, unusedSince time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_codes WHERE last_used < ?`, unusedSince)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type targetsRepo struct {
	db *sql.DB
}

func (r *targetsRepo) Subscribe(ctx context.Context, t domain.NotificationTarget) (domain.NotificationTarget, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_targets (created_at, code, channel_id, guild_id, format)
		 VALUES (?, ?, ?, ?, ?)`,
		t.CreatedAt, t.Code, t.ChannelID, t.GuildID, t.Format,
	)
	if err != nil {
		return domain.NotificationTarget{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.NotificationTarget{}, err
	}
	t.ID = int(id)
	return t, nil
}

func (r *targetsRepo) FindTargets(ctx context.Context, filter store.TargetFilter) ([]domain.NotificationTarget, error) {
	query := `SELECT id, created_at, code, channel_id, guild_id, format FROM notification_targets WHERE 1=1`
	var args []any
	if filter.Code != nil {
		query += ` AND code = ?`
		args = append(args, *filter.Code)
	}
	if filter.ChannelID != nil {
		query += ` AND channel_id = ?`
		args = append(args, *filter.ChannelID)
	}
	if filter.GuildID != nil {
		query += ` AND guild_id = ?`
		args = append(args, *filter.GuildID)
	}

	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NotificationTarget
	for rows.Next() {
		var t domain.NotificationTarget
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.Code, &t.ChannelID, &t.GuildID, &t.Format); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *targetsRepo) Unsubscribe(ctx context.Context, code string, channelID, guildID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_targets WHERE code = ? AND channel_id = ? AND guild_id = ?`,
		code, channelID, guildID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
