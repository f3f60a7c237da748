package sources

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"alertador/internal/domain"
	"alertador/internal/urlnorm"
)

// OpenPhish looks URLs up in the community feed (one URL per line). The feed
// is fetched lazily and cached for feedTTL; lookups match the exact URL and
// fall back to a host match. The feed cannot prove absence of fresh phish,
// so a miss is unknown, not clean.
type OpenPhish struct {
	client  *http.Client
	feedURL string
	feedTTL time.Duration

	mu        sync.Mutex
	urls      map[string]struct{}
	hosts     map[string]struct{}
	fetchedAt time.Time
}

func NewOpenPhish(feedURL string, timeout time.Duration) *OpenPhish {
	return &OpenPhish{
		client:  newHTTPClient(timeout),
		feedURL: feedURL,
		feedTTL: 10 * time.Minute,
	}
}

func (s *OpenPhish) Name() string { return "openphish" }

func (s *OpenPhish) Query(ctx context.Context, n urlnorm.Normalized) (Result, error) {
	urls, hosts, err := s.feed(ctx)
	if err != nil {
		return Result{}, err
	}
	if _, ok := urls[n.Canonical]; ok {
		return Result{Label: domain.LabelMalicious, Detail: "in feed"}, nil
	}
	if _, ok := hosts[n.Host]; ok {
		return Result{Label: domain.LabelMalicious, Detail: "host in feed"}, nil
	}
	return Result{Label: domain.LabelUnknown, Detail: "not in feed"}, nil
}

func (s *OpenPhish) feed(ctx context.Context) (map[string]struct{}, map[string]struct{}, error) {
	s.mu.Lock()
	if s.urls != nil && time.Since(s.fetchedAt) < s.feedTTL {
		urls, hosts := s.urls, s.hosts
		s.mu.Unlock()
		return urls, hosts, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: openphish: %v", domain.ErrSourceUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: openphish: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: openphish: http %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	urls := make(map[string]struct{})
	hosts := make(map[string]struct{})
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		entry, err := urlnorm.Normalize(line)
		if err != nil {
			continue
		}
		urls[entry.Canonical] = struct{}{}
		hosts[entry.Host] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: openphish: read: %v", domain.ErrSourceUnavailable, err)
	}

	s.mu.Lock()
	s.urls, s.hosts, s.fetchedAt = urls, hosts, time.Now()
	s.mu.Unlock()
	return urls, hosts, nil
}
