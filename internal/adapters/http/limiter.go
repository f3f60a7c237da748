package httpadapter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorLimiter tracks a token bucket per requester id so one noisy
// reporter cannot flood the report pipeline. Idle entries are evicted so
// one-shot requester ids do not grow the map forever.
type visitorLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newVisitorLimiter(limits Limits) *visitorLimiter {
	if limits.ReportsPerWindow <= 0 || limits.WindowSeconds <= 0 {
		// Disabled; allow everything.
		return &visitorLimiter{now: time.Now}
	}
	window := time.Duration(limits.WindowSeconds * float64(time.Second))
	return &visitorLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(limits.ReportsPerWindow) / limits.WindowSeconds),
		burst:    limits.ReportsPerWindow,
		// A visitor idle this long has a full bucket again, so dropping
		// its entry loses nothing.
		idleTTL: 3 * window,
		now:     time.Now,
	}
}

func (l *visitorLimiter) allow(id string) bool {
	if l.visitors == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		for vid, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.idleTTL {
				delete(l.visitors, vid)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[id]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.lim.Allow()
}
