// Package registry maintains the subscriber set behind idempotent
// subscribe/unsubscribe operations.
package registry

import (
	"context"
	"time"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

type Service struct {
	subs ports.SubscriberRepository
	now  func() time.Time
}

func New(subs ports.SubscriberRepository) *Service {
	return &Service{subs: subs, now: time.Now}
}

var _ ports.Registry = (*Service)(nil)

// Subscribe activates the subscriber. Subscribing an already-active
// subscriber is a no-op returning success.
func (s *Service) Subscribe(ctx context.Context, subscriberID string) error {
	return s.subs.UpsertActive(ctx, subscriberID, s.now())
}

// Unsubscribe removes the subscriber. Unsubscribing a non-subscriber is a
// no-op returning success.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID string) error {
	return s.subs.Remove(ctx, subscriberID)
}

// Pause keeps the subscription but stops deliveries.
func (s *Service) Pause(ctx context.Context, subscriberID string) error {
	return s.subs.SetState(ctx, subscriberID, domain.SubscriberPaused)
}

// Resume reactivates a paused subscriber.
func (s *Service) Resume(ctx context.Context, subscriberID string) error {
	return s.subs.SetState(ctx, subscriberID, domain.SubscriberActive)
}

// ListActive snapshots the active subscriber ids.
func (s *Service) ListActive(ctx context.Context) ([]string, error) {
	return s.subs.ListActive(ctx)
}
