// Package reputation merges verdicts from the configured blacklist sources,
// caching merged results per source with TTLs.
package reputation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alertador/internal/domain"
	"alertador/internal/ports"
	"alertador/internal/sources"
	"alertador/internal/urlnorm"
)

// CheckResult is the merged classification for one fingerprint.
type CheckResult struct {
	Fingerprint string
	Label       domain.Label
	// Degraded is set when every source failed, so the unknown label
	// reflects an outage rather than a real answer.
	Degraded  bool
	CheckedAt time.Time
	Verdicts  []domain.Verdict
}

// Config tunes lookup timeouts and cache TTLs.
type Config struct {
	SourceTimeout time.Duration
	VerdictTTL    time.Duration
	FailureTTL    time.Duration
}

// Resolver fans a lookup out to its sources concurrently, each under an
// independent timeout, and merges with caution: any malicious answer
// poisons the verdict.
type Resolver struct {
	sources []sources.Source
	cache   ports.VerdictCache
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

func New(srcs []sources.Source, cache ports.VerdictCache, cfg Config, log *slog.Logger) *Resolver {
	return &Resolver{sources: srcs, cache: cache, cfg: cfg, log: log, now: time.Now}
}

// Check classifies the fingerprint. Source failures yield unknown for that
// source; Check itself never fails on source trouble.
func (r *Resolver) Check(ctx context.Context, n urlnorm.Normalized) (CheckResult, error) {
	now := r.now()
	verdicts := make([]domain.Verdict, len(r.sources))
	var missing []int

	for i, src := range r.sources {
		v, ok, err := r.cache.Get(ctx, n.Fingerprint, src.Name())
		if err != nil {
			r.log.Warn("verdict cache read failed", "source", src.Name(), "error", err)
			ok = false
		}
		if ok && !v.Expired(now) {
			verdicts[i] = v
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		var wg sync.WaitGroup
		for _, i := range missing {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				verdicts[i] = r.query(ctx, r.sources[i], n)
			}(i)
		}
		wg.Wait()

		for _, i := range missing {
			if err := r.cache.Put(ctx, verdicts[i]); err != nil {
				r.log.Warn("verdict cache write failed", "source", verdicts[i].Source, "error", err)
			}
		}
	}

	return r.merge(n.Fingerprint, verdicts, now), nil
}

func (r *Resolver) query(ctx context.Context, src sources.Source, n urlnorm.Normalized) domain.Verdict {
	qctx, cancel := context.WithTimeout(ctx, r.cfg.SourceTimeout)
	defer cancel()

	res, err := src.Query(qctx, n)
	v := domain.Verdict{
		Fingerprint: n.Fingerprint,
		Source:      src.Name(),
		CheckedAt:   r.now(),
		TTL:         r.cfg.VerdictTTL,
	}
	if err != nil {
		r.log.Warn("reputation source failed", "source", src.Name(), "fingerprint", n.Fingerprint, "error", err)
		v.Label = domain.LabelUnknown
		v.Detail = err.Error()
		v.Failed = true
		v.TTL = r.cfg.FailureTTL
		return v
	}
	v.Label = res.Label
	v.Detail = res.Detail
	return v
}

func (r *Resolver) merge(fingerprint string, verdicts []domain.Verdict, now time.Time) CheckResult {
	label := domain.LabelUnknown
	sawClean := false
	failed := 0
	for _, v := range verdicts {
		switch v.Label {
		case domain.LabelMalicious:
			label = domain.LabelMalicious
		case domain.LabelClean:
			sawClean = true
		}
		if v.Failed {
			failed++
		}
	}
	if label != domain.LabelMalicious && sawClean {
		label = domain.LabelClean
	}
	return CheckResult{
		Fingerprint: fingerprint,
		Label:       label,
		Degraded:    len(verdicts) > 0 && failed == len(verdicts),
		CheckedAt:   now,
		Verdicts:    verdicts,
	}
}
