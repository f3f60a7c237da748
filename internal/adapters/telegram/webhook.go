package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"alertador/internal/services/registry"
	"alertador/internal/services/reports"
	"alertador/internal/services/reputation"
	"alertador/internal/urlnorm"
)

// Webhook decodes bot updates into core commands and replies through the
// client. It is a routing-layer peer of the HTTP adapter: same services,
// different wire.
type Webhook struct {
	client   *Client
	resolver *reputation.Resolver
	reports  *reports.Service
	registry *registry.Service
	log      *slog.Logger
}

func NewWebhook(client *Client, resolver *reputation.Resolver, reportSvc *reports.Service,
	registrySvc *registry.Service, log *slog.Logger) *Webhook {
	return &Webhook{client: client, resolver: resolver, reports: reportSvc, registry: registrySvc, log: log}
}

type update struct {
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var up update
	if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// Always ack; Telegram re-sends updates on non-200.
	w.WriteHeader(http.StatusOK)

	text := strings.TrimSpace(up.Message.Text)
	if text == "" || up.Message.Chat.ID == 0 {
		return
	}
	chatID := strconv.FormatInt(up.Message.Chat.ID, 10)

	cmd, args := splitCommand(text)
	ctx := r.Context()

	var reply string
	switch cmd {
	case "/subscribe":
		if err := h.registry.Subscribe(ctx, chatID); err != nil {
			h.log.Error("subscribe failed", "chat", chatID, "error", err)
			return
		}
		reply = "Subscribed. You will receive phishing alerts."
	case "/unsubscribe":
		if err := h.registry.Unsubscribe(ctx, chatID); err != nil {
			h.log.Error("unsubscribe failed", "chat", chatID, "error", err)
			return
		}
		reply = "Unsubscribed."
	case "/check":
		reply = h.runChecks(r, chatID, args, false)
	case "/report":
		reply = h.runChecks(r, chatID, args, true)
	case "/recent":
		reply = h.recent(r, args)
	default:
		// Bare links pasted into the chat count as reports.
		reply = h.runChecks(r, chatID, text, true)
	}
	if reply == "" {
		return
	}
	if err := h.client.sendMessage(ctx, chatID, reply); err != nil {
		h.log.Warn("webhook reply failed", "chat", chatID, "error", err)
	}
}

func (h *Webhook) runChecks(r *http.Request, chatID, text string, report bool) string {
	urls := urlnorm.ExtractURLs(text)
	if len(urls) == 0 {
		return "No valid URLs found. Usage: /check <url> or /report <url>"
	}
	var lines []string
	for _, n := range urls {
		ctx := r.Context()
		if report {
			if _, err := h.reports.SubmitReport(ctx, n, chatID); err != nil {
				h.log.Error("report failed", "fingerprint", n.Fingerprint, "error", err)
				continue
			}
		}
		res, err := h.resolver.Check(ctx, n)
		if err != nil {
			h.log.Error("check failed", "fingerprint", n.Fingerprint, "error", err)
			continue
		}
		rec, err := h.reports.RecordVerdict(ctx, n, res.Label, res.CheckedAt)
		if err != nil {
			h.log.Error("verdict bookkeeping failed", "fingerprint", n.Fingerprint, "error", err)
			continue
		}
		line := fmt.Sprintf("%s -> %s (%s)", n.Canonical, rec.State, res.Label)
		if res.Degraded {
			line += " (verification degraded, sources unreachable)"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return "Could not process that right now, try again later."
	}
	return strings.Join(lines, "\n")
}

func (h *Webhook) recent(r *http.Request, args string) string {
	limit := 10
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		limit = n
	}
	cases, err := h.reports.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("recent failed", "error", err)
		return "Could not list recent reports."
	}
	if len(cases) == 0 {
		return "No reports yet."
	}
	var lines []string
	for i, rec := range cases {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s, %d reporters", i+1, rec.State, rec.CanonicalURL, rec.DistinctReporterCount))
	}
	return strings.Join(lines, "\n")
}

func splitCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	parts := strings.SplitN(text, " ", 2)
	cmd = parts[0]
	// Commands may arrive as /check@botname in groups.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	if len(parts) > 1 {
		args = parts[1]
	}
	return cmd, args
}
