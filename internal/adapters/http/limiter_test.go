package httpadapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorLimiterEvictsIdleEntries(t *testing.T) {
	lim := newVisitorLimiter(Limits{ReportsPerWindow: 2, WindowSeconds: 1})
	clock := time.Now()
	lim.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		require.True(t, lim.allow("noisy"))
	}
	require.False(t, lim.allow("noisy"))

	// Past the idle TTL the next caller triggers a sweep.
	clock = clock.Add(lim.idleTTL + time.Second)
	require.True(t, lim.allow("calm"))

	lim.mu.Lock()
	_, kept := lim.visitors["noisy"]
	size := len(lim.visitors)
	lim.mu.Unlock()
	assert.False(t, kept)
	assert.Equal(t, 1, size)

	// An evicted visitor returns with a full bucket.
	assert.True(t, lim.allow("noisy"))
}

func TestVisitorLimiterDisabled(t *testing.T) {
	lim := newVisitorLimiter(Limits{})
	for i := 0; i < 100; i++ {
		require.True(t, lim.allow("anyone"))
	}
}
