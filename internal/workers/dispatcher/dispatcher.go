// Package dispatcher fans promoted-case alerts out to active subscribers.
// Delivery is at-least-once at the transport and deduplicated against the
// alert's delivered-to set, so replays after a crash only reach subscribers
// that were missed.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

// Config bounds the fan-out.
type Config struct {
	Workers         int
	RatePerSecond   float64
	Burst           int
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	DeliveryTimeout time.Duration
	ReplayInterval  time.Duration
}

type Dispatcher struct {
	alerts    ports.AlertRepository
	subs      ports.SubscriberRepository
	transport ports.Transport
	limiter   *rate.Limiter
	cfg       Config
	log       *slog.Logger
}

func New(alerts ports.AlertRepository, subs ports.SubscriberRepository, transport ports.Transport, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{
		alerts:    alerts,
		subs:      subs,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:       cfg,
		log:       log,
	}
}

// Run consumes promotion events until ctx is canceled. Alerts never marked
// dispatched (crash, full event buffer) are replayed at startup and on a
// ticker.
func (d *Dispatcher) Run(ctx context.Context, events <-chan domain.Alert) {
	d.replay(ctx)

	ticker := time.NewTicker(d.cfg.ReplayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-events:
			if err := d.Dispatch(ctx, alert); err != nil {
				d.log.Warn("dispatch interrupted", "alert_id", alert.ID, "error", err)
			}
		case <-ticker.C:
			d.replay(ctx)
		}
	}
}

func (d *Dispatcher) replay(ctx context.Context) {
	pending, err := d.alerts.PendingAlerts(ctx)
	if err != nil {
		d.log.Error("pending alert lookup failed", "error", err)
		return
	}
	for _, alert := range pending {
		if err := d.Dispatch(ctx, alert); err != nil {
			d.log.Warn("dispatch interrupted", "alert_id", alert.ID, "error", err)
			return
		}
	}
}

// Dispatch delivers one alert to every active subscriber not already in its
// delivered-to set. A per-subscriber permanent failure never blocks the
// rest of the fan-out.
func (d *Dispatcher) Dispatch(ctx context.Context, alert domain.Alert) error {
	delivered, err := d.alerts.Delivered(ctx, alert.ID)
	if err != nil {
		return err
	}
	active, err := d.subs.ListActive(ctx)
	if err != nil {
		return err
	}

	payload := domain.AlertPayload{
		AlertID:      alert.ID,
		CanonicalURL: alert.CanonicalURL,
		Domain:       alert.Domain,
		PromotedAt:   alert.PromotedAt,
	}

	jobs := make(chan *delivery)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dl := range jobs {
				d.deliver(ctx, alert, dl, payload)
			}
		}()
	}

	queued := 0
feed:
	for _, id := range active {
		if _, ok := delivered[id]; ok {
			continue
		}
		select {
		case jobs <- &delivery{subscriberID: id, state: deliveryPending}:
			queued++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Not marked dispatched; the replay loop finishes the job later.
		return err
	}
	if err := d.alerts.MarkDispatched(ctx, alert.ID, time.Now()); err != nil {
		return err
	}
	d.log.Info("alert dispatched", "alert_id", alert.ID, "domain", alert.Domain, "subscribers", queued)
	return nil
}

// deliver drives one subscriber's attempt state machine to a terminal state.
func (d *Dispatcher) deliver(ctx context.Context, alert domain.Alert, dl *delivery, payload domain.AlertPayload) {
	for !dl.state.terminal() {
		if err := d.limiter.Wait(ctx); err != nil {
			return // canceled; stays pending for replay
		}
		dl.attempt++

		callCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		err := d.transport.Send(callCtx, dl.subscriberID, payload)
		cancel()

		if err == nil {
			dl.state = deliveryDelivered
			if mErr := d.alerts.MarkDelivered(ctx, alert.ID, dl.subscriberID, time.Now()); mErr != nil {
				d.log.Error("delivery bookkeeping failed", "alert_id", alert.ID, "subscriber", dl.subscriberID, "error", mErr)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if dl.attempt >= d.cfg.MaxAttempts {
			dl.state = deliveryFailedPermanent
			d.log.Error("alert delivery failed permanently",
				"alert_id", alert.ID, "subscriber", dl.subscriberID, "attempts", dl.attempt, "error", err)
			return
		}

		dl.state = deliveryRetrying
		d.log.Debug("alert delivery retrying",
			"alert_id", alert.ID, "subscriber", dl.subscriberID, "attempt", dl.attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff(dl.attempt, d.cfg.BaseBackoff, d.cfg.MaxBackoff)):
		}
	}
}
