package ports

import (
	"context"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// SourceFetcher talks to one upstream feed and normalises its payload.
// Errors are returned as-is; degradation happens in SourceAdapter.
type SourceFetcher interface {
	Name() domain.Source
	Fetch(ctx context.Context, windowDays int) ([]domain.VulnerabilityRecord, error)
}

// SourceAdapter is the cache-backed view of a source. It never fails:
// an upstream problem yields an empty result with State FetchFailed.
type SourceAdapter interface {
	Name() domain.Source
	Fetch(ctx context.Context, windowDays int) domain.FetchResult
}

// SourceRefresher re-fetches a window and replaces the cached value on success.
type SourceRefresher interface {
	Refresh(ctx context.Context, windowDays int) error
}

// SeverityProvider looks up a CVSS-like score for one CVE.
// A CVE without data returns domain.ErrScoreNotFound.
type SeverityProvider interface {
	LookupSeverity(ctx context.Context, cveID string) (domain.SeverityScore, error)
}

// ExploitProvider looks up an exploit probability for one CVE.
// A CVE without data returns domain.ErrScoreNotFound.
type ExploitProvider interface {
	LookupExploit(ctx context.Context, cveID string) (domain.ExploitScore, error)
}

// BatchExploitProvider is implemented by exploit providers that accept many
// ids per call. Ids absent from the returned map have no score.
type BatchExploitProvider interface {
	ExploitProvider
	LookupExploitBatch(ctx context.Context, cveIDs []string) (map[string]domain.ExploitScore, error)
}

// Enricher fills missing scores on a batch of records.
type Enricher interface {
	Enrich(ctx context.Context, records []domain.VulnerabilityRecord) []domain.VulnerabilityRecord
}

// IntentResolver turns free text into a QueryIntent.
type IntentResolver interface {
	Resolve(ctx context.Context, query string) (domain.QueryIntent, error)
}

// Completer is a text-completion backend (an LLM).
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NarrativeGenerator renders a short human-readable answer from a page summary.
type NarrativeGenerator interface {
	Generate(ctx context.Context, req domain.NarrativeRequest) (string, error)
}

// StageObserver receives lifecycle events of each query.
type StageObserver interface {
	OnStage(ctx context.Context, event domain.StageEvent)
}

// Pipeline runs a resolved intent to a ranked page.
type Pipeline interface {
	Run(ctx context.Context, intent domain.QueryIntent, page domain.PageRequest) (domain.PageResult, error)
}

// QueryService is the entry point used by the transport adapters.
type QueryService interface {
	Answer(ctx context.Context, query string, page domain.PageRequest) (domain.QueryAnswer, error)
	Lookup(ctx context.Context, id string) (domain.VulnerabilityRecord, error)
	Stats(ctx context.Context) (domain.CatalogStats, error)
}

// TechniqueCatalog searches the MITRE ATT&CK techniques.
type TechniqueCatalog interface {
	Search(ctx context.Context, terms []string, limit int) ([]domain.Technique, error)
	Stats() domain.TechniqueStats
}
