// Package rediscache backs the verdict cache with Redis so resolver
// results survive restarts and are shared between instances.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"alertador/internal/domain"
	"alertador/internal/ports"
)

type Cache struct {
	client *redis.Client
}

func New(addr string) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

var _ ports.VerdictCache = (*Cache)(nil)

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func key(fingerprint, source string) string {
	return fmt.Sprintf("verdict:%s:%s", fingerprint, source)
}

type entry struct {
	Label     string    `json:"label"`
	Detail    string    `json:"detail,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	TTLMillis int64     `json:"ttl_ms"`
}

func (c *Cache) Get(ctx context.Context, fingerprint, source string) (domain.Verdict, bool, error) {
	raw, err := c.client.Get(ctx, key(fingerprint, source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Verdict{}, false, nil
	}
	if err != nil {
		return domain.Verdict{}, false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return domain.Verdict{}, false, err
	}
	return domain.Verdict{
		Fingerprint: fingerprint,
		Source:      source,
		Label:       domain.Label(e.Label),
		Detail:      e.Detail,
		Failed:      e.Failed,
		CheckedAt:   e.CheckedAt,
		TTL:         time.Duration(e.TTLMillis) * time.Millisecond,
	}, true, nil
}

func (c *Cache) Put(ctx context.Context, v domain.Verdict) error {
	raw, err := json.Marshal(entry{
		Label:     string(v.Label),
		Detail:    v.Detail,
		Failed:    v.Failed,
		CheckedAt: v.CheckedAt,
		TTLMillis: v.TTL.Milliseconds(),
	})
	if err != nil {
		return err
	}
	// Redis expiry mirrors the verdict TTL; the resolver still checks
	// Expired so both cache backends behave the same.
	return c.client.Set(ctx, key(v.Fingerprint, v.Source), raw, v.TTL).Err()
}
