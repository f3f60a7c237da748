package reports

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertador/internal/adapters/memory"
	"alertador/internal/domain"
	"alertador/internal/urlnorm"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := New(store, Config{MinReporters: 3, RecentLimit: 25}, slog.Default())
	return svc, store
}

func mustNormalize(t *testing.T, raw string) urlnorm.Normalized {
	t.Helper()
	n, err := urlnorm.Normalize(raw)
	require.NoError(t, err)
	return n
}

func drainAlerts(svc *Service) []domain.Alert {
	var out []domain.Alert
	for {
		select {
		case a := <-svc.Events():
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestSubmitReportCreatesCase(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.SubmitReport(ctx, mustNormalize(t, "http://scam.example/login"), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseReported, rec.State)
	assert.Equal(t, 1, rec.DistinctReporterCount)
	require.NotNil(t, rec.FirstReportedAt)
}

func TestRepeatSubmitterDoesNotDoubleCount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := mustNormalize(t, "http://scam.example/login")

	_, err := svc.SubmitReport(ctx, n, "alice")
	require.NoError(t, err)
	rec, err := svc.SubmitReport(ctx, n, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DistinctReporterCount)
}

func TestEquivalentURLsShareOneCase(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.SubmitReport(ctx, mustNormalize(t, "http://Scam.Example:80/login"), "alice")
	require.NoError(t, err)
	rec, err := svc.SubmitReport(ctx, mustNormalize(t, "http://scam.example/login/"), "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.DistinctReporterCount)
}

func TestThirdDistinctReporterPromotes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := mustNormalize(t, "http://scam.example/login")

	for _, who := range []string{"alice", "bob"} {
		rec, err := svc.SubmitReport(ctx, n, who)
		require.NoError(t, err)
		assert.Equal(t, domain.CaseReported, rec.State)
	}
	require.Empty(t, drainAlerts(svc))

	rec, err := svc.SubmitReport(ctx, n, "carol")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseConfirmed, rec.State)
	require.NotNil(t, rec.PromotedAt)

	alerts := drainAlerts(svc)
	require.Len(t, alerts, 1)
	assert.Equal(t, n.Fingerprint, alerts[0].Fingerprint)
}

func TestCleanVerdictBlocksReporterPromotion(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := mustNormalize(t, "http://legit.example/")

	_, err := svc.RecordVerdict(ctx, n, domain.LabelClean, time.Now())
	require.NoError(t, err)
	for _, who := range []string{"a", "b", "c", "d"} {
		rec, err := svc.SubmitReport(ctx, n, who)
		require.NoError(t, err)
		assert.Equal(t, domain.CaseReported, rec.State)
	}
	assert.Empty(t, drainAlerts(svc))
}

func TestMaliciousVerdictPromotesWithoutReports(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := mustNormalize(t, "http://evil.example/")

	rec, err := svc.RecordVerdict(ctx, n, domain.LabelMalicious, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.CaseConfirmed, rec.State)
	assert.Equal(t, 0, rec.DistinctReporterCount)
	assert.Len(t, drainAlerts(svc), 1)
}

func TestPromotionHappensOnceUnderConcurrency(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := mustNormalize(t, "http://race.example/login")

	var wg sync.WaitGroup
	submitters := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, who := range submitters {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			_, err := svc.SubmitReport(ctx, n, who)
			assert.NoError(t, err)
		}(who)
	}
	wg.Wait()

	rec, err := svc.Get(ctx, n.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseConfirmed, rec.State)
	assert.Equal(t, len(submitters), rec.DistinctReporterCount)
	assert.Len(t, drainAlerts(svc), 1)
}

func TestClearResetsAccumulation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	n := mustNormalize(t, "http://maybe.example/")

	for _, who := range []string{"a", "b", "c"} {
		_, err := svc.SubmitReport(ctx, n, who)
		require.NoError(t, err)
	}
	drainAlerts(svc)

	rec, err := svc.Clear(ctx, n.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.CaseCleared, rec.State)
	assert.Equal(t, 0, rec.DistinctReporterCount)

	// Old reporters count again after the clear; two are not enough.
	for _, who := range []string{"a", "b"} {
		rec, err = svc.SubmitReport(ctx, n, who)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.CaseReported, rec.State)
	assert.Equal(t, 2, rec.DistinctReporterCount)
	assert.Empty(t, drainAlerts(svc))

	rec, err = svc.SubmitReport(ctx, n, "c")
	require.NoError(t, err)
	assert.Equal(t, domain.CaseConfirmed, rec.State)
	assert.Len(t, drainAlerts(svc), 1)
}

func TestClearUnknownFingerprint(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Clear(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecentOrdersByActivity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first := mustNormalize(t, "http://one.example/")
	second := mustNormalize(t, "http://two.example/")

	base := time.Now()
	svc.now = func() time.Time { return base }
	_, err := svc.SubmitReport(ctx, first, "alice")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(time.Second) }
	_, err = svc.SubmitReport(ctx, second, "alice")
	require.NoError(t, err)

	recent, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.Fingerprint, recent[0].Fingerprint)
	assert.Equal(t, first.Fingerprint, recent[1].Fingerprint)
}
