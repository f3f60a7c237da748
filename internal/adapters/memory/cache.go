package memory

import (
	"context"
	"sync"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

// VerdictCache is an in-process verdict cache. Expiry is enforced by the
// resolver against each verdict's TTL; the cache only stores entries.
type VerdictCache struct {
	mu       sync.RWMutex
	verdicts map[string]domain.Verdict
}

func NewVerdictCache() *VerdictCache {
	return &VerdictCache{verdicts: make(map[string]domain.Verdict)}
}

var _ ports.VerdictCache = (*VerdictCache)(nil)

func key(fingerprint, source string) string { return fingerprint + "|" + source }

func (c *VerdictCache) Get(ctx context.Context, fingerprint, source string) (domain.Verdict, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.verdicts[key(fingerprint, source)]
	return v, ok, nil
}

func (c *VerdictCache) Put(ctx context.Context, v domain.Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[key(v.Fingerprint, v.Source)] = v
	return nil
}
