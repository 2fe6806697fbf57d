package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/lcalzada-xor/cyberiq/internal/cache"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// DefaultSourceTTL keeps volatile feeds for a few minutes.
const DefaultSourceTTL = 10 * time.Minute

// StateListener is told about every fetch outcome, e.g. to drive health status.
type StateListener func(source domain.Source, state domain.FetchState)

// CachedAdapter wraps a SourceFetcher with the TTL cache keyed by
// (source, windowDays). Upstream failures degrade to an empty result.
type CachedAdapter struct {
	fetcher   ports.SourceFetcher
	cache     *cache.TTLCache[[]domain.VulnerabilityRecord]
	ttl       time.Duration
	group     singleflight.Group
	listeners []StateListener
}

// NewCachedAdapter creates the cache-backed adapter for one fetcher.
func NewCachedAdapter(fetcher ports.SourceFetcher, store *cache.TTLCache[[]domain.VulnerabilityRecord], ttl time.Duration) *CachedAdapter {
	if ttl <= 0 {
		ttl = DefaultSourceTTL
	}
	return &CachedAdapter{
		fetcher: fetcher,
		cache:   store,
		ttl:     ttl,
	}
}

// OnState registers a listener for fetch outcomes.
func (a *CachedAdapter) OnState(l StateListener) {
	a.listeners = append(a.listeners, l)
}

// Name implements ports.SourceAdapter.
func (a *CachedAdapter) Name() domain.Source {
	return a.fetcher.Name()
}

// CacheKey builds the cache key of one source window.
func CacheKey(source domain.Source, windowDays int) string {
	return fmt.Sprintf("%s:%d", source, windowDays)
}

// Fetch returns the cached window or fetches it. Concurrent misses for the
// same window share one upstream call.
func (a *CachedAdapter) Fetch(ctx context.Context, windowDays int) domain.FetchResult {
	source := a.Name()
	key := CacheKey(source, windowDays)

	if records, ok := a.cache.Get(key); ok {
		a.record(source, domain.FetchCacheHit)
		return domain.FetchResult{Source: source, Records: domain.CloneRecords(records), State: domain.FetchCacheHit}
	}

	ch := a.group.DoChan(key, func() (interface{}, error) {
		return a.load(context.WithoutCancel(ctx), key, windowDays)
	})

	select {
	case <-ctx.Done():
		// The shared load keeps running and still populates the cache.
		telemetry.SourceFetches.WithLabelValues(string(source), "cancelled").Inc()
		return domain.FetchResult{Source: source, State: domain.FetchFailed, Err: &domain.SourceError{Source: source, Op: "fetch", Err: ctx.Err()}}
	case res := <-ch:
		if res.Err != nil {
			slog.Warn("source fetch failed, degrading to empty", "source", source, "window_days", windowDays, "error", res.Err)
			a.record(source, domain.FetchFailed)
			return domain.FetchResult{Source: source, State: domain.FetchFailed, Err: res.Err}
		}
		records := res.Val.([]domain.VulnerabilityRecord)
		a.record(source, domain.FetchFetched)
		return domain.FetchResult{Source: source, Records: domain.CloneRecords(records), State: domain.FetchFetched}
	}
}

// Refresh re-fetches a window and replaces the cached value on success.
// On failure the previous value is kept.
func (a *CachedAdapter) Refresh(ctx context.Context, windowDays int) error {
	key := CacheKey(a.Name(), windowDays)
	_, err, _ := a.group.Do(key, func() (interface{}, error) {
		return a.load(ctx, key, windowDays)
	})
	if err != nil {
		a.record(a.Name(), domain.FetchFailed)
		return err
	}
	a.record(a.Name(), domain.FetchFetched)
	return nil
}

// Cached returns the cached window without fetching.
func (a *CachedAdapter) Cached(windowDays int) ([]domain.VulnerabilityRecord, bool) {
	records, ok := a.cache.Get(CacheKey(a.Name(), windowDays))
	if !ok {
		return nil, false
	}
	return domain.CloneRecords(records), true
}

func (a *CachedAdapter) load(ctx context.Context, key string, windowDays int) ([]domain.VulnerabilityRecord, error) {
	ctx, span := telemetry.Tracer("sources").Start(ctx, "source.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", string(a.Name())),
		attribute.Int("window_days", windowDays),
	)

	start := time.Now()
	records, err := a.fetcher.Fetch(ctx, windowDays)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	slog.Info("source fetched", "source", a.Name(), "window_days", windowDays, "records", len(records), "took", time.Since(start).String())

	a.cache.Set(key, records, a.ttl)
	return records, nil
}

func (a *CachedAdapter) record(source domain.Source, state domain.FetchState) {
	telemetry.SourceFetches.WithLabelValues(string(source), string(state)).Inc()
	for _, l := range a.listeners {
		l(source, state)
	}
}
