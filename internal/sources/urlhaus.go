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

const urlhausEndpoint = "https://urlhaus-api.abuse.ch/v1/url/"

// URLhaus queries the abuse.ch URLhaus JSON API. A listed URL that is still
// online is malicious; a listed-but-offline URL stays unknown rather than
// poisoning the merge; no_results is clean.
type URLhaus struct {
	client   *http.Client
	endpoint string
}

func NewURLhaus(timeout time.Duration) *URLhaus {
	return &URLhaus{client: newHTTPClient(timeout), endpoint: urlhausEndpoint}
}

func (s *URLhaus) Name() string { return "urlhaus" }

func (s *URLhaus) Query(ctx context.Context, n urlnorm.Normalized) (Result, error) {
	form := url.Values{"url": {n.Canonical}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("%w: urlhaus: %v", domain.ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: urlhaus: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: urlhaus: http %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var body struct {
		QueryStatus string `json:"query_status"`
		URLStatus   string `json:"url_status"`
		Threat      string `json:"threat"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("%w: urlhaus: decode: %v", domain.ErrSourceUnavailable, err)
	}

	switch body.QueryStatus {
	case "ok":
		if body.URLStatus == "online" {
			return Result{Label: domain.LabelMalicious, Detail: "listed, " + nonEmpty(body.Threat, "online")}, nil
		}
		return Result{Label: domain.LabelUnknown, Detail: "listed, offline"}, nil
	case "no_results":
		return Result{Label: domain.LabelClean, Detail: "not listed"}, nil
	default:
		return Result{Label: domain.LabelUnknown, Detail: "query_status=" + body.QueryStatus}, nil
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
