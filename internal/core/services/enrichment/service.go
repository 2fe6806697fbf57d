package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/lcalzada-xor/cyberiq/internal/cache"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// Defaults
const (
	DefaultMaxItems  = 10
	DefaultMinDelay  = 700 * time.Millisecond
	DefaultBulkDelay = 500 * time.Millisecond
	DefaultScoreTTL  = 6 * time.Hour
)

var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// Config tunes the enrichment service.
type Config struct {
	MaxItems  int           // records enriched per batch, counted from the front
	MinDelay  time.Duration // minimum spacing between uncached severity calls
	BulkDelay time.Duration // minimum spacing between uncached exploit calls
	ScoreTTL  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxItems:  DefaultMaxItems,
		MinDelay:  DefaultMinDelay,
		BulkDelay: DefaultBulkDelay,
		ScoreTTL:  DefaultScoreTTL,
	}
}

type severityEntry struct {
	score domain.SeverityScore
	found bool
}

type exploitEntry struct {
	score domain.ExploitScore
	found bool
}

// Service fills missing severity and exploit scores. Scores a source
// already reported are never replaced.
type Service struct {
	severity ports.SeverityProvider
	exploit  ports.ExploitProvider

	severityCache *cache.TTLCache[severityEntry]
	exploitCache  *cache.TTLCache[exploitEntry]

	severityLimiter *rate.Limiter
	exploitLimiter  *rate.Limiter

	cfg Config
}

// NewService creates an enrichment service. Either provider may be nil.
func NewService(severity ports.SeverityProvider, exploit ports.ExploitProvider, cfg Config, cacheOpts ...cache.Option) *Service {
	if cfg.ScoreTTL <= 0 {
		cfg.ScoreTTL = DefaultScoreTTL
	}
	if cfg.MaxItems < 0 {
		cfg.MaxItems = 0
	}
	return &Service{
		severity:        severity,
		exploit:         exploit,
		severityCache:   cache.New[severityEntry]("severity", cacheOpts...),
		exploitCache:    cache.New[exploitEntry]("exploit", cacheOpts...),
		severityLimiter: newLimiter(cfg.MinDelay),
		exploitLimiter:  newLimiter(cfg.BulkDelay),
		cfg:             cfg,
	}
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// CachedCounts returns how many severity and exploit answers are cached.
func (s *Service) CachedCounts() (severity, exploit int) {
	return s.severityCache.Len(), s.exploitCache.Len()
}

// HasScores reports whether a severity or exploit score was found upstream
// for id and is still cached. Cached not-found answers report false.
func (s *Service) HasScores(id string) (severity, exploit bool) {
	if e, ok := s.severityCache.Peek(id); ok && e.found {
		severity = true
	}
	if e, ok := s.exploitCache.Peek(id); ok && e.found {
		exploit = true
	}
	return severity, exploit
}

// Enrich returns a copy of records with missing scores filled for the first
// MaxItems entries. Later entries are returned untouched. A failed lookup
// leaves that score unset and the batch continues. Cancellation stops
// enrichment and returns what has been filled so far.
func (s *Service) Enrich(ctx context.Context, records []domain.VulnerabilityRecord) []domain.VulnerabilityRecord {
	out := domain.CloneRecords(records)

	n := s.cfg.MaxItems
	if n > len(out) {
		n = len(out)
	}
	if n == 0 {
		return out
	}

	ctx, span := telemetry.Tracer("enrichment").Start(ctx, "enrichment.batch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", n))

	batch := out[:n]
	s.prefetchExploits(ctx, batch)

	for i := range batch {
		if ctx.Err() != nil {
			slog.Debug("enrichment cancelled", "done", i, "batch", n)
			break
		}
		s.enrichOne(ctx, &batch[i])
	}
	return out
}

func (s *Service) enrichOne(ctx context.Context, r *domain.VulnerabilityRecord) {
	if !cveIDPattern.MatchString(r.ID) {
		return
	}

	if r.SeverityScore == nil && s.severity != nil {
		if score, ok := s.lookupSeverity(ctx, r.ID); ok {
			r.SeverityVersion = score.Version
			if r.CWE == "" {
				r.CWE = score.CWE
			}
			r.SetSeverity(score.Score)
		}
	}

	if r.ExploitProbability == nil && s.exploit != nil {
		if score, ok := s.lookupExploit(ctx, r.ID); ok {
			r.ExploitPercentile = domain.Float(score.Percentile)
			r.SetExploit(score.Probability)
		}
	}

	r.Refresh()
}

func (s *Service) lookupSeverity(ctx context.Context, id string) (domain.SeverityScore, bool) {
	if e, ok := s.severityCache.Get(id); ok {
		return e.score, e.found
	}

	if err := s.severityLimiter.Wait(ctx); err != nil {
		return domain.SeverityScore{}, false
	}

	score, err := s.severity.LookupSeverity(ctx, id)
	switch {
	case err == nil:
		telemetry.EnrichmentLookups.WithLabelValues("severity", "found").Inc()
		s.severityCache.Set(id, severityEntry{score: score, found: true}, s.cfg.ScoreTTL)
		return score, true
	case errors.Is(err, domain.ErrScoreNotFound):
		telemetry.EnrichmentLookups.WithLabelValues("severity", "not_found").Inc()
		s.severityCache.Set(id, severityEntry{}, s.cfg.ScoreTTL)
		return domain.SeverityScore{}, false
	default:
		telemetry.EnrichmentLookups.WithLabelValues("severity", "error").Inc()
		slog.Warn("severity lookup failed", "cve", id, "error", err)
		return domain.SeverityScore{}, false
	}
}

func (s *Service) lookupExploit(ctx context.Context, id string) (domain.ExploitScore, bool) {
	if e, ok := s.exploitCache.Get(id); ok {
		return e.score, e.found
	}

	if err := s.exploitLimiter.Wait(ctx); err != nil {
		return domain.ExploitScore{}, false
	}

	score, err := s.exploit.LookupExploit(ctx, id)
	switch {
	case err == nil:
		telemetry.EnrichmentLookups.WithLabelValues("exploit", "found").Inc()
		s.exploitCache.Set(id, exploitEntry{score: score, found: true}, s.cfg.ScoreTTL)
		return score, true
	case errors.Is(err, domain.ErrScoreNotFound):
		telemetry.EnrichmentLookups.WithLabelValues("exploit", "not_found").Inc()
		s.exploitCache.Set(id, exploitEntry{}, s.cfg.ScoreTTL)
		return domain.ExploitScore{}, false
	default:
		telemetry.EnrichmentLookups.WithLabelValues("exploit", "error").Inc()
		slog.Warn("exploit lookup failed", "cve", id, "error", err)
		return domain.ExploitScore{}, false
	}
}

// prefetchExploits resolves every uncached exploit score of the batch in one
// bulk call when the provider supports it. Every requested id ends up cached,
// found or not, unless the call itself fails.
func (s *Service) prefetchExploits(ctx context.Context, batch []domain.VulnerabilityRecord) {
	bulk, ok := s.exploit.(ports.BatchExploitProvider)
	if !ok {
		return
	}

	var ids []string
	seen := make(map[string]bool)
	for _, r := range batch {
		if r.ExploitProbability != nil || !cveIDPattern.MatchString(r.ID) || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if _, cached := s.exploitCache.Get(r.ID); !cached {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return
	}

	if err := s.exploitLimiter.Wait(ctx); err != nil {
		return
	}

	scores, err := bulk.LookupExploitBatch(ctx, ids)
	if err != nil {
		telemetry.EnrichmentLookups.WithLabelValues("exploit_bulk", "error").Inc()
		slog.Warn("bulk exploit lookup failed", "count", len(ids), "error", err)
		return
	}

	telemetry.EnrichmentLookups.WithLabelValues("exploit_bulk", "found").Inc()
	for _, id := range ids {
		if score, found := scores[id]; found {
			s.exploitCache.Set(id, exploitEntry{score: score, found: true}, s.cfg.ScoreTTL)
		} else {
			s.exploitCache.Set(id, exploitEntry{}, s.cfg.ScoreTTL)
		}
	}
}
