package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alertador/internal/domain"
	"alertador/internal/urlnorm"
)

const phishtankEndpoint = "https://checkurl.phishtank.com/checkurl/"

// PhishTank queries the classic checkurl API. Entries that are in the
// database and verified valid are malicious; in-database but invalidated
// entries stay unknown; everything else is clean.
type PhishTank struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func NewPhishTank(apiKey string, timeout time.Duration) *PhishTank {
	return &PhishTank{client: newHTTPClient(timeout), endpoint: phishtankEndpoint, apiKey: apiKey}
}

func (s *PhishTank) Name() string { return "phishtank" }

func (s *PhishTank) Query(ctx context.Context, n urlnorm.Normalized) (Result, error) {
	if s.apiKey == "" {
		return Result{Label: domain.LabelUnknown, Detail: "no api key"}, nil
	}

	form := url.Values{
		"format":  {"json"},
		"app_key": {s.apiKey},
		"url":     {n.Canonical},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("%w: phishtank: %v", domain.ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: phishtank: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: phishtank: http %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var body struct {
		Results struct {
			InDatabase bool `json:"in_database"`
			Valid      bool `json:"valid"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("%w: phishtank: decode: %v", domain.ErrSourceUnavailable, err)
	}

	switch {
	case body.Results.InDatabase && body.Results.Valid:
		return Result{Label: domain.LabelMalicious, Detail: "verified phish"}, nil
	case body.Results.InDatabase:
		return Result{Label: domain.LabelUnknown, Detail: "in database, not verified"}, nil
	default:
		return Result{Label: domain.LabelClean, Detail: "not in database"}, nil
	}
}
