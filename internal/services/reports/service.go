// Package reports owns the case lifecycle: community report intake with
// per-submitter dedupe, verdict bookkeeping, the promotion rule and the
// administrative clear override.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"alertador/internal/domain"
	"alertador/internal/ports"
	"alertador/internal/urlnorm"
)

// Config tunes promotion and listing behavior.
type Config struct {
	// MinReporters is the distinct-reporter promotion threshold (N_min).
	MinReporters int
	// RecentLimit caps Recent listings.
	RecentLimit int
}

// Service serializes every case mutation through the repository's
// per-fingerprint critical section and emits exactly one alert per
// promotion to confirmed-phishing.
type Service struct {
	cases  ports.CaseRepository
	cfg    Config
	events chan domain.Alert
	log    *slog.Logger
	now    func() time.Time
}

func New(cases ports.CaseRepository, cfg Config, log *slog.Logger) *Service {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 25
	}
	return &Service{
		cases:  cases,
		cfg:    cfg,
		events: make(chan domain.Alert, 64),
		log:    log,
		now:    time.Now,
	}
}

// Events yields alerts for promoted cases. The channel is buffered and
// best-effort: the dispatcher's pending-alert replay covers anything a
// full buffer drops.
func (s *Service) Events() <-chan domain.Alert { return s.events }

// SubmitReport records a community report. Idempotent per submitter: a
// repeat submission refreshes the timestamp without touching the distinct
// reporter count. The promotion check runs in the same critical section.
func (s *Service) SubmitReport(ctx context.Context, n urlnorm.Normalized, submitterID string) (domain.CaseRecord, error) {
	now := s.now()
	var rec domain.CaseRecord
	var promoted *domain.Alert

	err := s.cases.Mutate(ctx, n.Fingerprint, func(m ports.CaseMutator) error {
		cur, ok, err := m.Case()
		if err != nil {
			return err
		}
		if !ok {
			cur = s.newCase(n)
		}
		if cur.State == domain.CaseCleared {
			// Reports after a clear restart accumulation from zero;
			// stale reports must not resurrect the old count.
			if err := m.PurgeReports(); err != nil {
				return err
			}
			cur.State = domain.CaseReported
			cur.DistinctReporterCount = 0
			cur.FirstReportedAt = nil
			cur.ClearedAt = nil
		}
		if cur.State == domain.CaseUnknown {
			cur.State = domain.CaseReported
		}
		if cur.FirstReportedAt == nil {
			t := now
			cur.FirstReportedAt = &t
		}

		first, err := m.UpsertReport(domain.Report{
			ID:          uuid.NewString(),
			Fingerprint: n.Fingerprint,
			SubmitterID: submitterID,
			RawURL:      n.Raw,
			SubmittedAt: now,
		})
		if err != nil {
			return err
		}
		if first {
			cur.DistinctReporterCount++
		}

		promoted, err = s.promote(m, &cur, now)
		if err != nil {
			return err
		}
		cur.UpdatedAt = now
		if err := m.SaveCase(cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	if err != nil {
		return domain.CaseRecord{}, err
	}
	s.emit(promoted)
	return rec, nil
}

// RecordVerdict stores the merged resolver label on the case (creating it
// lazily on a first check) and re-runs the promotion check.
func (s *Service) RecordVerdict(ctx context.Context, n urlnorm.Normalized, label domain.Label, checkedAt time.Time) (domain.CaseRecord, error) {
	now := s.now()
	var rec domain.CaseRecord
	var promoted *domain.Alert

	err := s.cases.Mutate(ctx, n.Fingerprint, func(m ports.CaseMutator) error {
		cur, ok, err := m.Case()
		if err != nil {
			return err
		}
		if !ok {
			cur = s.newCase(n)
			cur.State = domain.CaseUnknown
		}
		cur.VerdictLabel = label
		t := checkedAt
		cur.VerdictCheckedAt = &t

		promoted, err = s.promote(m, &cur, now)
		if err != nil {
			return err
		}
		cur.UpdatedAt = now
		if err := m.SaveCase(cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	if err != nil {
		return domain.CaseRecord{}, err
	}
	s.emit(promoted)
	return rec, nil
}

// Clear is the administrative override: the case moves to cleared and its
// report history is wiped, so only fresh reports can re-promote it.
func (s *Service) Clear(ctx context.Context, fingerprint string) (domain.CaseRecord, error) {
	now := s.now()
	var rec domain.CaseRecord
	err := s.cases.Mutate(ctx, fingerprint, func(m ports.CaseMutator) error {
		cur, ok, err := m.Case()
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		if err := m.PurgeReports(); err != nil {
			return err
		}
		cur.State = domain.CaseCleared
		cur.DistinctReporterCount = 0
		t := now
		cur.ClearedAt = &t
		cur.UpdatedAt = now
		if err := m.SaveCase(cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	return rec, err
}

// Get returns the case record for a fingerprint.
func (s *Service) Get(ctx context.Context, fingerprint string) (domain.CaseRecord, error) {
	return s.cases.Get(ctx, fingerprint)
}

// Recent lists the most recently touched cases, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.CaseRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.RecentLimit {
		limit = s.cfg.RecentLimit
	}
	return s.cases.Recent(ctx, limit)
}

func (s *Service) newCase(n urlnorm.Normalized) domain.CaseRecord {
	return domain.CaseRecord{
		Fingerprint:  n.Fingerprint,
		CanonicalURL: n.Canonical,
		Domain:       n.Domain,
		State:        domain.CaseReported,
		VerdictLabel: domain.LabelUnknown,
	}
}

// promote applies the promotion rule inside the caller's critical section.
// The state guard makes the confirmed transition happen at most once per
// case; the alert is created in the same atomic scope.
func (s *Service) promote(m ports.CaseMutator, cur *domain.CaseRecord, now time.Time) (*domain.Alert, error) {
	if cur.State != domain.CaseReported && cur.State != domain.CaseUnknown {
		return nil, nil
	}
	byReports := cur.DistinctReporterCount >= s.cfg.MinReporters && cur.VerdictLabel != domain.LabelClean
	byVerdict := cur.VerdictLabel == domain.LabelMalicious
	if !byReports && !byVerdict {
		return nil, nil
	}

	cur.State = domain.CaseConfirmed
	t := now
	cur.PromotedAt = &t
	alert := domain.Alert{
		ID:           uuid.NewString(),
		Fingerprint:  cur.Fingerprint,
		CanonicalURL: cur.CanonicalURL,
		Domain:       cur.Domain,
		PromotedAt:   now,
	}
	if err := m.CreateAlert(alert); err != nil {
		return nil, fmt.Errorf("create alert for %s: %w", cur.Fingerprint, err)
	}
	return &alert, nil
}

func (s *Service) emit(alert *domain.Alert) {
	if alert == nil {
		return
	}
	select {
	case s.events <- *alert:
	default:
		s.log.Warn("promotion event buffer full, relying on replay", "alert_id", alert.ID, "fingerprint", alert.Fingerprint)
	}
}
