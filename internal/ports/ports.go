package ports

import (
	"context"

	"alertador/internal/domain"
)

// Transport delivers alert payloads to a single subscriber. Implementations
// must honor ctx deadlines; failures map to domain.ErrDeliveryFailed.
type Transport interface {
	Send(ctx context.Context, subscriberID string, payload domain.AlertPayload) error
}

// Registry maintains the subscribed identities. All operations are
// idempotent: repeat subscribes and unsubscribes are no-ops returning success.
type Registry interface {
	Subscribe(ctx context.Context, subscriberID string) error
	Unsubscribe(ctx context.Context, subscriberID string) error
	ListActive(ctx context.Context) ([]string, error)
}
