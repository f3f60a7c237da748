package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

const caseColumns = `fingerprint, canonical_url, domain, state, distinct_reporter_count,
	first_reported_at, promoted_at, cleared_at, verdict_label, verdict_checked_at, updated_at`

// Mutate serializes all writes for a fingerprint with a transaction-scoped
// advisory lock, so creation and update share one serialization point.
func (db *DB) Mutate(ctx context.Context, fingerprint string, fn func(m ports.CaseMutator) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, fingerprint); err != nil {
		return err
	}
	if err := fn(&caseMutator{ctx: ctx, tx: tx, fingerprint: fingerprint}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (db *DB) Get(ctx context.Context, fingerprint string) (domain.CaseRecord, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE fingerprint = $1`, fingerprint)
	rec, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CaseRecord{}, domain.ErrNotFound
	}
	return rec, err
}

func (db *DB) Recent(ctx context.Context, limit int) ([]domain.CaseRecord, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (db *DB) CountCases(ctx context.Context) (int64, error) {
	var n int64
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(1) FROM cases`).Scan(&n)
	return n, err
}

type caseMutator struct {
	ctx         context.Context
	tx          pgx.Tx
	fingerprint string
}

func (m *caseMutator) Case() (domain.CaseRecord, bool, error) {
	row := m.tx.QueryRow(m.ctx, `SELECT `+caseColumns+` FROM cases WHERE fingerprint = $1`, m.fingerprint)
	rec, err := scanCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CaseRecord{}, false, nil
	}
	if err != nil {
		return domain.CaseRecord{}, false, err
	}
	return rec, true, nil
}

func (m *caseMutator) SaveCase(rec domain.CaseRecord) error {
	_, err := m.tx.Exec(m.ctx, `
		INSERT INTO cases (fingerprint, canonical_url, domain, state, distinct_reporter_count,
			first_reported_at, promoted_at, cleared_at, verdict_label, verdict_checked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (fingerprint) DO UPDATE SET
			state = EXCLUDED.state,
			distinct_reporter_count = EXCLUDED.distinct_reporter_count,
			first_reported_at = EXCLUDED.first_reported_at,
			promoted_at = EXCLUDED.promoted_at,
			cleared_at = EXCLUDED.cleared_at,
			verdict_label = EXCLUDED.verdict_label,
			verdict_checked_at = EXCLUDED.verdict_checked_at,
			updated_at = EXCLUDED.updated_at
	`, rec.Fingerprint, rec.CanonicalURL, rec.Domain, string(rec.State), rec.DistinctReporterCount,
		rec.FirstReportedAt, rec.PromotedAt, rec.ClearedAt, string(rec.VerdictLabel), rec.VerdictCheckedAt, rec.UpdatedAt)
	return err
}

func (m *caseMutator) UpsertReport(rep domain.Report) (bool, error) {
	// xmax = 0 only for freshly inserted rows, distinguishing first
	// submissions from refreshes.
	var inserted bool
	err := m.tx.QueryRow(m.ctx, `
		INSERT INTO reports (id, fingerprint, submitter_id, raw_url, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint, submitter_id) DO UPDATE SET
			raw_url = EXCLUDED.raw_url,
			submitted_at = EXCLUDED.submitted_at
		RETURNING (xmax = 0)
	`, rep.ID, rep.Fingerprint, rep.SubmitterID, rep.RawURL, rep.SubmittedAt).Scan(&inserted)
	return inserted, err
}

func (m *caseMutator) PurgeReports() error {
	_, err := m.tx.Exec(m.ctx, `DELETE FROM reports WHERE fingerprint = $1`, m.fingerprint)
	return err
}

func (m *caseMutator) CreateAlert(alert domain.Alert) error {
	_, err := m.tx.Exec(m.ctx, `
		INSERT INTO alerts (alert_id, fingerprint, canonical_url, domain, promoted_at)
		VALUES ($1, $2, $3, $4, $5)
	`, alert.ID, alert.Fingerprint, alert.CanonicalURL, alert.Domain, alert.PromotedAt)
	return err
}

func scanCase(row pgx.Row) (domain.CaseRecord, error) {
	var rec domain.CaseRecord
	var state, label string
	err := row.Scan(&rec.Fingerprint, &rec.CanonicalURL, &rec.Domain, &state, &rec.DistinctReporterCount,
		&rec.FirstReportedAt, &rec.PromotedAt, &rec.ClearedAt, &label, &rec.VerdictCheckedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.CaseRecord{}, err
	}
	rec.State = domain.CaseState(state)
	rec.VerdictLabel = domain.Label(label)
	return rec, nil
}
