package dispatcher

import "time"

// deliveryState is the per-subscriber attempt state machine. Keeping the
// states explicit keeps the attempt bound and the terminal outcomes
// auditable.
type deliveryState int

const (
	deliveryPending deliveryState = iota
	deliveryRetrying
	deliveryDelivered
	deliveryFailedPermanent
)

func (s deliveryState) String() string {
	switch s {
	case deliveryPending:
		return "pending"
	case deliveryRetrying:
		return "retrying"
	case deliveryDelivered:
		return "delivered"
	case deliveryFailedPermanent:
		return "failed_permanent"
	default:
		return "unknown"
	}
}

func (s deliveryState) terminal() bool {
	return s == deliveryDelivered || s == deliveryFailedPermanent
}

type delivery struct {
	subscriberID string
	state        deliveryState
	attempt      int
}

// backoff computes the exponential wait before the next attempt, capped at max.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
