package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// DefaultRansomwareThreshold is the strict ransomware match count below which
// the filter is relaxed to the whole catalog subset.
const DefaultRansomwareThreshold = 10

// DefaultWindows returns the fetch window in days used per source.
// A zero window asks for the full feed.
func DefaultWindows() map[domain.Source]int {
	return map[domain.Source]int{
		domain.SourceExploitedCatalog:      0,
		domain.SourceVulnerabilityDatabase: 90,
		domain.SourceAdvisoryFeed:          30,
	}
}

// Config tunes the pipeline.
type Config struct {
	Windows             map[domain.Source]int
	RansomwareThreshold int
}

// Option configures a Service.
type Option func(*Service)

// WithObserver registers a lifecycle observer.
func WithObserver(o ports.StageObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Service fetches, merges, filters, ranks, enriches and paginates.
type Service struct {
	adapters  map[domain.Source]ports.SourceAdapter
	enricher  ports.Enricher
	observers []ports.StageObserver
	cfg       Config
}

// NewService creates the pipeline over the given adapters. enricher may be nil.
func NewService(adapters []ports.SourceAdapter, enricher ports.Enricher, cfg Config, opts ...Option) *Service {
	if cfg.Windows == nil {
		cfg.Windows = DefaultWindows()
	}
	if cfg.RansomwareThreshold <= 0 {
		cfg.RansomwareThreshold = DefaultRansomwareThreshold
	}

	s := &Service{
		adapters: make(map[domain.Source]ports.SourceAdapter, len(adapters)),
		enricher: enricher,
		cfg:      cfg,
	}
	for _, a := range adapters {
		s.adapters[a.Name()] = a
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run implements ports.Pipeline.
func (s *Service) Run(ctx context.Context, intent domain.QueryIntent, page domain.PageRequest) (domain.PageResult, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		telemetry.QueryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	ctx, span := telemetry.Tracer("aggregator").Start(ctx, "aggregator.run")
	defer span.End()

	if err := intent.Validate(); err != nil {
		outcome = "invalid"
		return domain.PageResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidIntent, err)
	}
	filter := intent.Filter()
	if err := filter.Validate(); err != nil {
		outcome = "invalid"
		return domain.PageResult{}, fmt.Errorf("%w: %w", domain.ErrInvalidIntent, err)
	}

	// fetching
	results := s.Collect(ctx, intent.Sources)

	var (
		failed []domain.Source
		errs   []error
		lists  = make([][]domain.VulnerabilityRecord, 0, len(results))
	)
	for _, res := range results {
		if res.State == domain.FetchFailed {
			failed = append(failed, res.Source)
			if res.Err != nil {
				errs = append(errs, res.Err)
			}
			continue
		}
		lists = append(lists, res.Records)
	}
	if len(failed) == len(results) {
		outcome = "unavailable"
		err := fmt.Errorf("%w: %w", domain.ErrAllSourcesFailed, errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, "all sources failed")
		return domain.PageResult{}, err
	}

	// merging
	merged := Merge(lists...)
	s.Notify(ctx, domain.StageEvent{Stage: domain.StageMerging, Count: len(merged)})

	// filtering
	filtered := filter.Apply(merged)
	if intent.Ransomware {
		filtered = s.ransomwareFilter(filtered)
	}
	s.Notify(ctx, domain.StageEvent{Stage: domain.StageFiltering, Count: len(filtered)})

	var warnings []error
	if len(filtered) == 0 && len(merged) > 0 {
		warnings = append(warnings, domain.ErrNoResultsAfterFiltering)
		slog.Warn("filters excluded every record", "merged", len(merged), "keywords", intent.Keywords,
			"vendor", intent.VendorFilter, "year", intent.YearFilter)
	}
	totalCount := len(filtered)

	// sorting
	Sort(filtered, intent.SortBy)
	s.Notify(ctx, domain.StageEvent{Stage: domain.StageSorting, Count: len(filtered)})

	limited := filtered
	if intent.Limit != nil && *intent.Limit < len(limited) {
		limited = limited[:*intent.Limit]
	}

	// enriching
	if s.enricher != nil && len(limited) > 0 {
		s.Notify(ctx, domain.StageEvent{Stage: domain.StageEnriching, Count: len(limited)})
		limited = s.enricher.Enrich(ctx, limited)
	}

	// paginating
	result := domain.Paginate(limited, totalCount, page)
	result.FailedSources = failed
	result.Warnings = warnings
	s.Notify(ctx, domain.StageEvent{Stage: domain.StagePaginating, Count: len(result.Records)})
	s.Notify(ctx, domain.StageEvent{Stage: domain.StageDone, Count: totalCount})

	if len(failed) > 0 {
		outcome = "partial"
	}
	span.SetAttributes(
		attribute.Int("merged", len(merged)),
		attribute.Int("total_count", totalCount),
		attribute.Int("failed_sources", len(failed)),
	)
	return result, nil
}

// Collect fetches the given sources concurrently with their configured
// windows. Results keep the order of sources. A source with no adapter is
// reported as failed.
func (s *Service) Collect(ctx context.Context, sources []domain.Source) []domain.FetchResult {
	results := make([]domain.FetchResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		s.Notify(ctx, domain.StageEvent{Stage: domain.StageFetching, Source: src, State: domain.FetchPending})

		adapter, ok := s.adapters[src]
		if !ok {
			results[i] = domain.FetchResult{
				Source: src,
				State:  domain.FetchFailed,
				Err:    &domain.SourceError{Source: src, Op: "fetch", Err: errors.New("no adapter configured")},
			}
			s.Notify(ctx, domain.StageEvent{Stage: domain.StageFetching, Source: src, State: domain.FetchFailed})
			continue
		}

		wg.Add(1)
		go func(i int, src domain.Source, adapter ports.SourceAdapter) {
			defer wg.Done()
			res := adapter.Fetch(ctx, s.cfg.Windows[src])
			res.Source = src
			results[i] = res
			s.Notify(ctx, domain.StageEvent{
				Stage:  domain.StageFetching,
				Source: src,
				State:  res.State,
				Count:  len(res.Records),
			})
		}(i, src, adapter)
	}
	wg.Wait()

	return results
}

// Find returns the merged, enriched record with the given id across every
// configured source.
func (s *Service) Find(ctx context.Context, id string) (domain.VulnerabilityRecord, error) {
	results := s.Collect(ctx, domain.AllSources)

	lists := make([][]domain.VulnerabilityRecord, 0, len(results))
	for _, res := range results {
		lists = append(lists, res.Records)
	}

	for _, r := range Merge(lists...) {
		if !strings.EqualFold(r.ID, id) {
			continue
		}
		if s.enricher != nil {
			if enriched := s.enricher.Enrich(ctx, []domain.VulnerabilityRecord{r}); len(enriched) == 1 {
				r = enriched[0]
			}
		}
		return r, nil
	}
	return domain.VulnerabilityRecord{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, id)
}

// Sources lists the sources with an adapter, in precedence order.
func (s *Service) Sources() []domain.Source {
	var out []domain.Source
	for _, src := range domain.AllSources {
		if _, ok := s.adapters[src]; ok {
			out = append(out, src)
		}
	}
	return out
}

// ransomwareFilter narrows to ransomware-associated records unless fewer than
// the threshold match, in which case the catalog subset is kept whole.
func (s *Service) ransomwareFilter(records []domain.VulnerabilityRecord) []domain.VulnerabilityRecord {
	var strict, catalog []domain.VulnerabilityRecord
	for _, r := range records {
		if r.RansomwareAssociated {
			strict = append(strict, r)
		}
		if r.Source == domain.SourceExploitedCatalog {
			catalog = append(catalog, r)
		}
	}
	if len(strict) >= s.cfg.RansomwareThreshold {
		return strict
	}
	slog.Debug("ransomware filter relaxed", "strict", len(strict), "catalog", len(catalog))
	return catalog
}

// Sort orders records in place. Ties keep merge order.
func Sort(records []domain.VulnerabilityRecord, by domain.SortBy) {
	switch by {
	case domain.SortByDate:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].DateAdded > records[j].DateAdded
		})
	case domain.SortBySeverity:
		sort.SliceStable(records, func(i, j int) bool {
			a, b := records[i].SeverityScore, records[j].SeverityScore
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return *a > *b
			}
		})
	}
}

// Notify publishes ev to every observer, stamped with the query id of ctx.
func (s *Service) Notify(ctx context.Context, ev domain.StageEvent) {
	if len(s.observers) == 0 {
		return
	}
	ev.QueryID = QueryID(ctx)
	for _, o := range s.observers {
		o.OnStage(ctx, ev)
	}
}

type queryIDKey struct{}

// WithQueryID attaches the id stamped on lifecycle events.
func WithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey{}, id)
}

// QueryID returns the id attached by WithQueryID, or "".
func QueryID(ctx context.Context) string {
	id, _ := ctx.Value(queryIDKey{}).(string)
	return id
}
