package postgres

import (
	"context"
	"time"

	"alertador/internal/domain"
)

func (db *DB) MarkDelivered(ctx context.Context, alertID, subscriberID string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO alert_deliveries (alert_id, subscriber_id, delivered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (alert_id, subscriber_id) DO NOTHING
	`, alertID, subscriberID, at)
	return err
}

func (db *DB) Delivered(ctx context.Context, alertID string) (map[string]struct{}, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT subscriber_id FROM alert_deliveries WHERE alert_id = $1`, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (db *DB) MarkDispatched(ctx context.Context, alertID string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `UPDATE alerts SET dispatched_at = $2 WHERE alert_id = $1`, alertID, at)
	return err
}

func (db *DB) PendingAlerts(ctx context.Context) ([]domain.Alert, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT alert_id, fingerprint, canonical_url, domain, promoted_at
		FROM alerts
		WHERE dispatched_at IS NULL
		ORDER BY promoted_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.CanonicalURL, &a.Domain, &a.PromotedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
