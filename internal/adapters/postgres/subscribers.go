package postgres

import (
	"context"
	"time"

	"alertador/internal/domain"
)

func (db *DB) UpsertActive(ctx context.Context, subscriberID string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO subscribers (subscriber_id, state, subscribed_at)
		VALUES ($1, 'active', $2)
		ON CONFLICT (subscriber_id) DO UPDATE SET state = 'active'
	`, subscriberID, at)
	return err
}

func (db *DB) Remove(ctx context.Context, subscriberID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM subscribers WHERE subscriber_id = $1`, subscriberID)
	return err
}

func (db *DB) SetState(ctx context.Context, subscriberID string, state domain.SubscriberState) error {
	tag, err := db.Pool.Exec(ctx, `UPDATE subscribers SET state = $2 WHERE subscriber_id = $1`,
		subscriberID, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) ListActive(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT subscriber_id FROM subscribers WHERE state = 'active' ORDER BY subscriber_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (db *DB) CountSubscribers(ctx context.Context) (int64, error) {
	var n int64
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM subscribers`).Scan(&n)
	return n, err
}
