// Package memory provides in-process implementations of the repository
// ports. Tests run against it, and the server falls back to it when no
// DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

// Store implements CaseRepository, SubscriberRepository and AlertRepository.
type Store struct {
	mu sync.RWMutex

	cases   map[string]domain.CaseRecord
	reports map[string]map[string]domain.Report // fingerprint -> submitter -> report

	subscribers map[string]domain.Subscriber

	alerts       map[string]domain.Alert
	alertOrder   []string
	deliveries   map[string]map[string]time.Time // alert -> subscriber -> at
	dispatchedAt map[string]time.Time

	fpMu    sync.Mutex
	fpLocks map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		cases:        make(map[string]domain.CaseRecord),
		reports:      make(map[string]map[string]domain.Report),
		subscribers:  make(map[string]domain.Subscriber),
		alerts:       make(map[string]domain.Alert),
		deliveries:   make(map[string]map[string]time.Time),
		dispatchedAt: make(map[string]time.Time),
		fpLocks:      make(map[string]*sync.Mutex),
	}
}

var (
	_ ports.CaseRepository       = (*Store)(nil)
	_ ports.SubscriberRepository = (*Store)(nil)
	_ ports.AlertRepository      = (*Store)(nil)
)

func (s *Store) lockFor(fingerprint string) *sync.Mutex {
	s.fpMu.Lock()
	defer s.fpMu.Unlock()
	l, ok := s.fpLocks[fingerprint]
	if !ok {
		l = &sync.Mutex{}
		s.fpLocks[fingerprint] = l
	}
	return l
}

// Mutate serializes all writes for one fingerprint behind its own mutex.
func (s *Store) Mutate(ctx context.Context, fingerprint string, fn func(m ports.CaseMutator) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.lockFor(fingerprint)
	l.Lock()
	defer l.Unlock()
	return fn(&caseMutator{store: s, fingerprint: fingerprint})
}

func (s *Store) Get(ctx context.Context, fingerprint string) (domain.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cases[fingerprint]
	if !ok {
		return domain.CaseRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]domain.CaseRecord, error) {
	s.mu.RLock()
	out := make([]domain.CaseRecord, 0, len(s.cases))
	for _, rec := range s.cases {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountCases(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.cases)), nil
}

type caseMutator struct {
	store       *Store
	fingerprint string
}

func (m *caseMutator) Case() (domain.CaseRecord, bool, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	rec, ok := m.store.cases[m.fingerprint]
	return rec, ok, nil
}

func (m *caseMutator) SaveCase(rec domain.CaseRecord) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.cases[m.fingerprint] = rec
	return nil
}

func (m *caseMutator) UpsertReport(rep domain.Report) (bool, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	bysub, ok := m.store.reports[m.fingerprint]
	if !ok {
		bysub = make(map[string]domain.Report)
		m.store.reports[m.fingerprint] = bysub
	}
	if existing, ok := bysub[rep.SubmitterID]; ok {
		existing.SubmittedAt = rep.SubmittedAt
		existing.RawURL = rep.RawURL
		bysub[rep.SubmitterID] = existing
		return false, nil
	}
	bysub[rep.SubmitterID] = rep
	return true, nil
}

func (m *caseMutator) PurgeReports() error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	delete(m.store.reports, m.fingerprint)
	return nil
}

func (m *caseMutator) CreateAlert(alert domain.Alert) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.alerts[alert.ID] = alert
	m.store.alertOrder = append(m.store.alertOrder, alert.ID)
	return nil
}

// SubscriberRepository

func (s *Store) UpsertActive(ctx context.Context, subscriberID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subscribers[subscriberID]; ok {
		sub.State = domain.SubscriberActive
		s.subscribers[subscriberID] = sub
		return nil
	}
	s.subscribers[subscriberID] = domain.Subscriber{
		ID:           subscriberID,
		State:        domain.SubscriberActive,
		SubscribedAt: at,
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, subscriberID)
	return nil
}

func (s *Store) SetState(ctx context.Context, subscriberID string, state domain.SubscriberState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscribers[subscriberID]
	if !ok {
		return domain.ErrNotFound
	}
	sub.State = state
	s.subscribers[subscriberID] = sub
	return nil
}

func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.subscribers))
	for id, sub := range s.subscribers {
		if sub.State == domain.SubscriberActive {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CountSubscribers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.subscribers)), nil
}

// AlertRepository

func (s *Store) MarkDelivered(ctx context.Context, alertID, subscriberID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.deliveries[alertID]
	if !ok {
		set = make(map[string]time.Time)
		s.deliveries[alertID] = set
	}
	if _, ok := set[subscriberID]; !ok {
		set[subscriberID] = at
	}
	return nil
}

func (s *Store) Delivered(ctx context.Context, alertID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.deliveries[alertID]))
	for id := range s.deliveries[alertID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *Store) MarkDispatched(ctx context.Context, alertID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatchedAt[alertID] = at
	return nil
}

func (s *Store) PendingAlerts(ctx context.Context) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Alert
	for _, id := range s.alertOrder {
		if _, done := s.dispatchedAt[id]; !done {
			out = append(out, s.alerts[id])
		}
	}
	return out, nil
}
