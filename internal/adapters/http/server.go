// Package httpadapter is the inbound routing layer: it decodes commands,
// calls the core services and renders their structured results as JSON.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"alertador/internal/domain"
	"alertador/internal/ports"
	"alertador/internal/services/registry"
	"alertador/internal/services/reports"
	"alertador/internal/services/reputation"
	"alertador/internal/urlnorm"
)

type Server struct {
	resolver *reputation.Resolver
	reports  *reports.Service
	registry *registry.Service
	cases    ports.CaseRepository
	subs     ports.SubscriberRepository
	limiter  *visitorLimiter
	log      *slog.Logger
}

// Limits configures the per-requester report rate limit.
type Limits struct {
	ReportsPerWindow int
	WindowSeconds    float64
}

func New(resolver *reputation.Resolver, reportSvc *reports.Service, registrySvc *registry.Service,
	cases ports.CaseRepository, subs ports.SubscriberRepository, limits Limits, log *slog.Logger) *Server {
	return &Server{
		resolver: resolver,
		reports:  reportSvc,
		registry: registrySvc,
		cases:    cases,
		subs:     subs,
		limiter:  newVisitorLimiter(limits),
		log:      log,
	}
}

// Routes returns a chi.Router with all command endpoints mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Post("/check", s.handleCheck)
	r.Post("/report", s.handleReport)
	r.Post("/subscribe", s.handleSubscribe)
	r.Post("/unsubscribe", s.handleUnsubscribe)
	r.Post("/cases/clear", s.handleClear)
	r.Get("/recent", s.handleRecent)
	return r
}

type urlCommand struct {
	URL         string `json:"url"`
	RequesterID string `json:"requester_id"`
}

type subscriberCommand struct {
	RequesterID string `json:"requester_id"`
}

type caseResponse struct {
	Status        string `json:"status"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	CanonicalURL  string `json:"canonical_url,omitempty"`
	Domain        string `json:"domain,omitempty"`
	CaseState     string `json:"case_state,omitempty"`
	Label         string `json:"label,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
	ReporterCount int    `json:"reporter_count"`
	Promoted      bool   `json:"promoted,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var cmd urlCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	n, err := urlnorm.Normalize(cmd.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	res, err := s.resolver.Check(r.Context(), n)
	if err != nil {
		s.internalError(w, "check failed", err)
		return
	}
	rec, err := s.reports.RecordVerdict(r.Context(), n, res.Label, res.CheckedAt)
	if err != nil {
		s.internalError(w, "verdict bookkeeping failed", err)
		return
	}

	respondJSON(w, http.StatusOK, caseResponse{
		Status:        "ok",
		Fingerprint:   n.Fingerprint,
		CanonicalURL:  n.Canonical,
		Domain:        n.Domain,
		CaseState:     string(rec.State),
		Label:         string(res.Label),
		Degraded:      res.Degraded,
		ReporterCount: rec.DistinctReporterCount,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var cmd urlCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if cmd.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "requester_id is required")
		return
	}
	if !s.limiter.allow(cmd.RequesterID) {
		respondJSON(w, http.StatusTooManyRequests, caseResponse{Status: "rate_limited"})
		return
	}
	n, err := urlnorm.Normalize(cmd.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	rec, err := s.reports.SubmitReport(r.Context(), n, cmd.RequesterID)
	if err != nil {
		s.internalError(w, "report submission failed", err)
		return
	}

	// Refresh the verdict and re-run the promotion check; a report always
	// succeeds from the submitter's perspective even if sources are down.
	res, err := s.resolver.Check(r.Context(), n)
	if err == nil {
		if updated, vErr := s.reports.RecordVerdict(r.Context(), n, res.Label, res.CheckedAt); vErr == nil {
			rec = updated
		} else {
			s.log.Warn("verdict bookkeeping failed", "fingerprint", n.Fingerprint, "error", vErr)
		}
	}

	respondJSON(w, http.StatusOK, caseResponse{
		Status:        "ok",
		Fingerprint:   n.Fingerprint,
		CanonicalURL:  n.Canonical,
		Domain:        n.Domain,
		CaseState:     string(rec.State),
		Label:         string(rec.VerdictLabel),
		ReporterCount: rec.DistinctReporterCount,
		Promoted:      rec.State == domain.CaseConfirmed,
	})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.handleSubscription(w, r, s.registry.Subscribe, "active")
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.handleSubscription(w, r, s.registry.Unsubscribe, "unsubscribed")
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id string) error, state string) {
	var cmd subscriberCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.RequesterID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "requester_id is required")
		return
	}
	if err := op(r.Context(), cmd.RequesterID); err != nil {
		s.internalError(w, "subscription update failed", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "state": state})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var cmd struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.Fingerprint == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "fingerprint is required")
		return
	}
	rec, err := s.reports.Clear(r.Context(), cmd.Fingerprint)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no case for fingerprint")
		return
	}
	if err != nil {
		s.internalError(w, "clear failed", err)
		return
	}
	respondJSON(w, http.StatusOK, caseResponse{
		Status:      "ok",
		Fingerprint: rec.Fingerprint,
		CaseState:   string(rec.State),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	recent, err := s.reports.Recent(r.Context(), limit)
	if err != nil {
		s.internalError(w, "recent listing failed", err)
		return
	}
	items := make([]caseResponse, 0, len(recent))
	for _, rec := range recent {
		items = append(items, caseResponse{
			Status:        "ok",
			Fingerprint:   rec.Fingerprint,
			CanonicalURL:  rec.CanonicalURL,
			Domain:        rec.Domain,
			CaseState:     string(rec.State),
			Label:         string(rec.VerdictLabel),
			ReporterCount: rec.DistinctReporterCount,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "cases": items})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	caseCount, err := s.cases.CountCases(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "degraded", err.Error())
		return
	}
	subCount, err := s.subs.CountSubscribers(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "degraded", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"cases":       caseCount,
		"subscribers": subCount,
	})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, map[string]string{"status": code, "detail": detail})
}
