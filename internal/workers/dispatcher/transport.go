package dispatcher

import (
	"context"
	"log/slog"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

// LogTransport logs deliveries instead of sending them. Used when no real
// transport is configured.
type LogTransport struct {
	Log *slog.Logger
}

var _ ports.Transport = LogTransport{}

func (t LogTransport) Send(ctx context.Context, subscriberID string, payload domain.AlertPayload) error {
	t.Log.Info("alert (log transport)",
		"subscriber", subscriberID, "url", payload.CanonicalURL, "alert_id", payload.AlertID)
	return nil
}
