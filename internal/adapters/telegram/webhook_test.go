package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
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

type botAPI struct {
	mu   sync.Mutex
	sent []struct{ ChatID, Text string }
}

func (b *botAPI) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"), r.URL.Path)
		var body struct {
			ChatID string `json:"chat_id"`
			Text   string `json:"text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		b.mu.Lock()
		b.sent = append(b.sent, struct{ ChatID, Text string }{body.ChatID, body.Text})
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

func newTestWebhook(t *testing.T, label domain.Label) (*Webhook, *memory.Store, *botAPI) {
	t.Helper()
	api := &botAPI{}
	apiSrv := httptest.NewServer(api.handler(t))
	t.Cleanup(apiSrv.Close)

	client := NewClient("test-token", apiSrv.URL, time.Second)
	store := memory.NewStore()
	resolver := reputation.New(
		[]sources.Source{stubSource{label: label}},
		memory.NewVerdictCache(),
		reputation.Config{SourceTimeout: time.Second, VerdictTTL: time.Hour, FailureTTL: time.Minute},
		slog.Default(),
	)
	reportSvc := reports.New(store, reports.Config{MinReporters: 3, RecentLimit: 25}, slog.Default())
	registrySvc := registry.New(store)
	return NewWebhook(client, resolver, reportSvc, registrySvc, slog.Default()), store, api
}

func postUpdate(t *testing.T, wh *Webhook, chatID int64, text string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"text": text,
			"chat": map[string]any{"id": chatID},
		},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()
	wh.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookSubscribeCommand(t *testing.T) {
	wh, store, api := newTestWebhook(t, domain.LabelUnknown)
	postUpdate(t, wh, 42, "/subscribe")

	active, err := store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, active)

	require.Len(t, api.sent, 1)
	assert.Equal(t, "42", api.sent[0].ChatID)
	assert.Contains(t, api.sent[0].Text, "Subscribed")
}

func TestWebhookCheckReplyFormat(t *testing.T) {
	wh, _, api := newTestWebhook(t, domain.LabelClean)
	postUpdate(t, wh, 7, "/check http://ok.example/page")

	require.Len(t, api.sent, 1)
	assert.Equal(t, "http://ok.example/page -> unknown (clean)", api.sent[0].Text)
}

func TestWebhookBareLinkCountsAsReport(t *testing.T) {
	wh, store, _ := newTestWebhook(t, domain.LabelUnknown)
	postUpdate(t, wh, 9, "look at http://scam.example/login")

	n, err := urlnorm.Normalize("http://scam.example/login")
	require.NoError(t, err)
	rec, err := store.Get(context.Background(), n.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.DistinctReporterCount)
}
