// Package sources implements the external blacklist lookups the resolver
// merges. Each source classifies a normalized URL independently; failures
// are reported as domain.ErrSourceUnavailable and never as a label.
package sources

import (
	"context"
	"net/http"
	"time"

	"alertador/internal/domain"
	"alertador/internal/urlnorm"
)

// Result is a single source's answer for one lookup.
type Result struct {
	Label  domain.Label
	Detail string
}

// Source is the capability interface for a reputation backend. Query must
// honor ctx deadlines; the resolver applies a per-call timeout budget.
type Source interface {
	Name() string
	Query(ctx context.Context, n urlnorm.Normalized) (Result, error)
}

const userAgent = "alertador/1.0"

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
