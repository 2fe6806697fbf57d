package domain

import (
	"time"
)

// SourceStats summarises one source's cached record set.
type SourceStats struct {
	Source       Source `json:"source"`
	Records      int    `json:"records"`
	WithSeverity int    `json:"with_severity"`
	WithCWE      int    `json:"with_cwe"`
	Ransomware   int    `json:"ransomware_campaigns"`
}

// EnrichmentStats reports score cache sizes and coverage. A record is covered
// when its source reported the score or the enrichment cache holds one for it.
type EnrichmentStats struct {
	SeverityCached int     `json:"severity_cached"`
	ExploitCached  int     `json:"exploit_cached"`
	SeverityCover  float64 `json:"severity_coverage_pct"`
	ExploitCover   float64 `json:"exploit_coverage_pct"`
}

// CatalogStats is an aggregated snapshot of everything currently loaded.
type CatalogStats struct {
	Sources     map[Source]SourceStats `json:"sources"`
	Total       int                    `json:"total"`
	Enrichment  EnrichmentStats        `json:"enrichment"`
	Techniques  TechniqueStats         `json:"mitre"`
	LastUpdated time.Time              `json:"updated_at"`
}

// NewCatalogStats initializes a stats object with an empty map to prevent nil access.
func NewCatalogStats() CatalogStats {
	return CatalogStats{
		Sources:     make(map[Source]SourceStats),
		LastUpdated: time.Now(),
	}
}

// Summarize counts severity, CWE and ransomware coverage for one source.
func Summarize(source Source, records []VulnerabilityRecord) SourceStats {
	s := SourceStats{Source: source, Records: len(records)}
	for _, r := range records {
		if r.SeverityScore != nil && *r.SeverityScore > 0 {
			s.WithSeverity++
		}
		if r.CWE != "" {
			s.WithCWE++
		}
		if r.RansomwareAssociated {
			s.Ransomware++
		}
	}
	return s
}

// Percent returns part/whole as a percentage rounded to one decimal.
func Percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(int(float64(part)*1000/float64(whole)+0.5)) / 10
}
