package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertador/internal/adapters/memory"
	"alertador/internal/domain"
	"alertador/internal/services/registry"
	"alertador/internal/services/reports"
	"alertador/internal/services/reputation"
	"alertador/internal/sources"
	"alertador/internal/urlnorm"
)

type stubSource struct {
	label domain.Label
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) Query(ctx context.Context, n urlnorm.Normalized) (sources.Result, error) {
	return sources.Result{Label: s.label}, nil
}

func newTestServer(t *testing.T, label domain.Label, limits Limits) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	resolver := reputation.New(
		[]sources.Source{stubSource{label: label}},
		memory.NewVerdictCache(),
		reputation.Config{SourceTimeout: time.Second, VerdictTTL: time.Hour, FailureTTL: time.Minute},
		slog.Default(),
	)
	reportSvc := reports.New(store, reports.Config{MinReporters: 3, RecentLimit: 25}, slog.Default())
	registrySvc := registry.New(store)
	return New(resolver, reportSvc, registrySvc, store, store, limits, slog.Default()), store
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCheckReturnsVerdictAndCaseState(t *testing.T) {
	srv, _ := newTestServer(t, domain.LabelClean, Limits{})
	rr := doJSON(t, srv.Routes(), http.MethodPost, "/check",
		`{"url":"http://ok.example/page","requester_id":"u1"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp caseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "clean", resp.Label)
	assert.Equal(t, string(domain.CaseUnknown), resp.CaseState)
}

func TestCheckRejectsInvalidURL(t *testing.T) {
	srv, _ := newTestServer(t, domain.LabelClean, Limits{})
	rr := doJSON(t, srv.Routes(), http.MethodPost, "/check",
		`{"url":"ftp://nope.example","requester_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_url")
}

func TestReportPromotesOnMaliciousVerdict(t *testing.T) {
	srv, _ := newTestServer(t, domain.LabelMalicious, Limits{})
	rr := doJSON(t, srv.Routes(), http.MethodPost, "/report",
		`{"url":"http://scam.example/login","requester_id":"u1"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp caseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Promoted)
	assert.Equal(t, string(domain.CaseConfirmed), resp.CaseState)
}

func TestReportRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, domain.LabelUnknown, Limits{ReportsPerWindow: 2, WindowSeconds: 60})
	router := srv.Routes()

	for i := 0; i < 2; i++ {
		rr := doJSON(t, router, http.MethodPost, "/report",
			fmt.Sprintf(`{"url":"http://scam%d.example/","requester_id":"noisy"}`, i))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := doJSON(t, router, http.MethodPost, "/report",
		`{"url":"http://scam3.example/","requester_id":"noisy"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Another requester is unaffected.
	rr = doJSON(t, router, http.MethodPost, "/report",
		`{"url":"http://scam4.example/","requester_id":"calm"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSubscribeUnsubscribeFlow(t *testing.T) {
	srv, store := newTestServer(t, domain.LabelUnknown, Limits{})
	router := srv.Routes()

	rr := doJSON(t, router, http.MethodPost, "/subscribe", `{"requester_id":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = doJSON(t, router, http.MethodPost, "/subscribe", `{"requester_id":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	active, err := store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, active)

	rr = doJSON(t, router, http.MethodPost, "/unsubscribe", `{"requester_id":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	active, err = store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRecentAndHealthz(t *testing.T) {
	srv, _ := newTestServer(t, domain.LabelUnknown, Limits{})
	router := srv.Routes()

	rr := doJSON(t, router, http.MethodPost, "/report",
		`{"url":"http://scam.example/a","requester_id":"u1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/recent?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var recent struct {
		Status string         `json:"status"`
		Cases  []caseResponse `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recent))
	require.Len(t, recent.Cases, 1)

	rr = doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cases":1`)
}

func TestClearEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, domain.LabelUnknown, Limits{})
	router := srv.Routes()

	n, err := urlnorm.Normalize("http://maybe.example/")
	require.NoError(t, err)
	rr := doJSON(t, router, http.MethodPost, "/report",
		`{"url":"http://maybe.example/","requester_id":"u1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/cases/clear",
		fmt.Sprintf(`{"fingerprint":"%s"}`, n.Fingerprint))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), string(domain.CaseCleared))

	rr = doJSON(t, router, http.MethodPost, "/cases/clear", `{"fingerprint":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
