package ports

import (
	"context"
	"time"

	"alertador/internal/domain"
)

// CaseMutator exposes the operations available inside a fingerprint's
// critical section. Implementations back it with a transaction (Postgres)
// or a per-fingerprint mutex (memory).
type CaseMutator interface {
	// Case returns the current record; ok is false if none exists yet.
	Case() (rec domain.CaseRecord, ok bool, err error)
	// SaveCase upserts the record.
	SaveCase(rec domain.CaseRecord) error
	// UpsertReport inserts the report, or refreshes SubmittedAt if the
	// (fingerprint, submitter) pair already has one. first is true only
	// for a brand-new pair.
	UpsertReport(rep domain.Report) (first bool, err error)
	// PurgeReports removes every report for the fingerprint.
	PurgeReports() error
	// CreateAlert records the promotion alert within the same atomic scope.
	CreateAlert(alert domain.Alert) error
}

// CaseRepository stores case records and their reports. Mutate serializes
// all writes for a fingerprint: concurrent calls for the same fingerprint
// never interleave, calls for different fingerprints proceed in parallel.
// No lock is held across external I/O; fn must not perform any.
type CaseRepository interface {
	Mutate(ctx context.Context, fingerprint string, fn func(m CaseMutator) error) error
	Get(ctx context.Context, fingerprint string) (domain.CaseRecord, error)
	Recent(ctx context.Context, limit int) ([]domain.CaseRecord, error)
	CountCases(ctx context.Context) (int64, error)
}

// SubscriberRepository stores subscriber rows, serialized per subscriber id.
// ListActive returns a consistent snapshot: a subscriber is either fully
// present or fully absent.
type SubscriberRepository interface {
	UpsertActive(ctx context.Context, subscriberID string, at time.Time) error
	Remove(ctx context.Context, subscriberID string) error
	SetState(ctx context.Context, subscriberID string, state domain.SubscriberState) error
	ListActive(ctx context.Context) ([]string, error)
	CountSubscribers(ctx context.Context) (int64, error)
}

// AlertRepository keeps alerts and their delivery bookkeeping.
type AlertRepository interface {
	// MarkDelivered is idempotent; recording the same (alert, subscriber)
	// pair twice is a no-op.
	MarkDelivered(ctx context.Context, alertID, subscriberID string, at time.Time) error
	Delivered(ctx context.Context, alertID string) (map[string]struct{}, error)
	// MarkDispatched stamps an alert whose fan-out ran to completion.
	MarkDispatched(ctx context.Context, alertID string, at time.Time) error
	// PendingAlerts returns alerts never marked dispatched, oldest first.
	// Used to replay fan-out after a restart.
	PendingAlerts(ctx context.Context) ([]domain.Alert, error)
}

// VerdictCache stores per-source verdicts keyed by (fingerprint, source),
// honoring each verdict's TTL.
type VerdictCache interface {
	Get(ctx context.Context, fingerprint, source string) (domain.Verdict, bool, error)
	Put(ctx context.Context, v domain.Verdict) error
}
