package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/aggregator"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/presentation"
)

const defaultMaxTechniques = 5

// Catalog is the read side of the pipeline used for lookups and stats.
type Catalog interface {
	Collect(ctx context.Context, sources []domain.Source) []domain.FetchResult
	Find(ctx context.Context, id string) (domain.VulnerabilityRecord, error)
	Sources() []domain.Source
}

// ScoreCache exposes the enrichment score caches.
type ScoreCache interface {
	CachedCounts() (severity, exploit int)
	HasScores(id string) (severity, exploit bool)
}

// Service answers free-text questions end to end.
type Service struct {
	resolver  ports.IntentResolver
	pipeline  ports.Pipeline
	catalog   Catalog
	narrator  ports.NarrativeGenerator
	scores    ScoreCache
	attack    ports.TechniqueCatalog
	maxTechs  int
	observers []ports.StageObserver
	pageSize  int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNarrator sets the narrative generator. The default is the plain summary.
func WithNarrator(n ports.NarrativeGenerator) Option {
	return func(s *Service) {
		if n != nil {
			s.narrator = n
		}
	}
}

// WithScoreCache reports score cache sizes in Stats.
func WithScoreCache(c ScoreCache) Option {
	return func(s *Service) {
		s.scores = c
	}
}

// WithTechniques attaches related ATT&CK techniques to answers, at most limit.
func WithTechniques(c ports.TechniqueCatalog, limit int) Option {
	return func(s *Service) {
		s.attack = c
		if limit > 0 {
			s.maxTechs = limit
		}
	}
}

// WithObserver receives the resolving stage, which precedes the pipeline.
func WithObserver(o ports.StageObserver) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithDefaultPageSize applies when a request names no page size.
func WithDefaultPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewService creates the query service.
func NewService(resolver ports.IntentResolver, pipeline ports.Pipeline, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		pipeline: pipeline,
		catalog:  catalog,
		narrator: presentation.PlainNarrator{},
		maxTechs: defaultMaxTechniques,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer implements ports.QueryService.
func (s *Service) Answer(ctx context.Context, q string, page domain.PageRequest) (domain.QueryAnswer, error) {
	id := uuid.NewString()
	ctx = aggregator.WithQueryID(ctx, id)
	q = strings.TrimSpace(q)

	if page.PageSize <= 0 {
		page.PageSize = s.pageSize
	}

	s.notify(ctx, domain.StageEvent{QueryID: id, Stage: domain.StageResolving})
	intent, err := s.resolver.Resolve(ctx, q)
	if err != nil {
		return domain.QueryAnswer{}, err
	}

	result, err := s.pipeline.Run(ctx, intent, page)
	if err != nil {
		return domain.QueryAnswer{}, err
	}

	techniques, techErr := s.techniques(ctx, intent)
	if techErr != nil {
		slog.Warn("technique lookup failed", "query_id", id, "error", techErr)
	}

	req := presentation.AttachTechniques(presentation.BuildRequest(q, result), techniques)
	narrative, err := s.narrator.Generate(ctx, req)
	if err != nil {
		slog.Warn("narrative generation failed", "query_id", id, "error", err)
		narrative, _ = presentation.PlainNarrator{}.Generate(ctx, req)
	}

	answer := domain.QueryAnswer{
		ID:          id,
		Query:       q,
		Intent:      intent,
		Page:        result,
		Narrative:   narrative,
		Techniques:  techniques,
		Sources:     sourceNames(intent.Sources, result.FailedSources),
		GeneratedAt: s.now().UTC(),
	}
	for _, w := range result.Warnings {
		answer.Warnings = append(answer.Warnings, w.Error())
	}
	for _, f := range result.FailedSources {
		answer.Warnings = append(answer.Warnings, fmt.Sprintf("%s: %s", f.DisplayName(), domain.ErrSourceUnavailable))
	}
	if techErr != nil {
		answer.Warnings = append(answer.Warnings, domain.ErrTechniquesUnavailable.Error())
	}
	return answer, nil
}

// techniques searches the ATT&CK catalog with the intent's keywords.
func (s *Service) techniques(ctx context.Context, intent domain.QueryIntent) ([]domain.Technique, error) {
	if s.attack == nil {
		return nil, nil
	}
	terms := append([]string(nil), intent.Keywords...)
	if intent.Ransomware {
		terms = append(terms, "ransomware")
	}
	if len(terms) == 0 {
		return nil, nil
	}
	return s.attack.Search(ctx, terms, s.maxTechs)
}

// Lookup implements ports.QueryService.
func (s *Service) Lookup(ctx context.Context, id string) (domain.VulnerabilityRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.VulnerabilityRecord{}, fmt.Errorf("%w: blank id", domain.ErrRecordNotFound)
	}
	return s.catalog.Find(ctx, id)
}

// Stats implements ports.QueryService.
func (s *Service) Stats(ctx context.Context) (domain.CatalogStats, error) {
	stats := domain.NewCatalogStats()
	stats.LastUpdated = s.now().UTC()

	results := s.catalog.Collect(ctx, s.catalog.Sources())
	var failed []error
	var withSeverity, withExploit int
	for _, res := range results {
		if res.State == domain.FetchFailed && res.Err != nil {
			failed = append(failed, res.Err)
		}
		stats.Sources[res.Source] = domain.Summarize(res.Source, res.Records)
		stats.Total += len(res.Records)
		for _, r := range res.Records {
			sev, exp := r.SeverityScore != nil, r.ExploitProbability != nil
			if s.scores != nil && (!sev || !exp) {
				cachedSev, cachedExp := s.scores.HasScores(r.ID)
				sev, exp = sev || cachedSev, exp || cachedExp
			}
			if sev {
				withSeverity++
			}
			if exp {
				withExploit++
			}
		}
	}
	if len(results) > 0 && len(failed) == len(results) {
		return stats, fmt.Errorf("%w: %w", domain.ErrAllSourcesFailed, errors.Join(failed...))
	}

	stats.Enrichment.SeverityCover = domain.Percent(withSeverity, stats.Total)
	stats.Enrichment.ExploitCover = domain.Percent(withExploit, stats.Total)
	if s.scores != nil {
		stats.Enrichment.SeverityCached, stats.Enrichment.ExploitCached = s.scores.CachedCounts()
	}
	if s.attack != nil {
		stats.Techniques = s.attack.Stats()
	}
	return stats, nil
}

func (s *Service) notify(ctx context.Context, ev domain.StageEvent) {
	for _, o := range s.observers {
		o.OnStage(ctx, ev)
	}
}

// sourceNames lists the display names of the sources that answered.
func sourceNames(requested, failed []domain.Source) []string {
	out := make([]string, 0, len(requested))
	for _, src := range requested {
		down := false
		for _, f := range failed {
			if f == src {
				down = true
				break
			}
		}
		if !down {
			out = append(out, src.DisplayName())
		}
	}
	return out
}
