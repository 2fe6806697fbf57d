package sources

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// DefaultKEVURL is the CISA Known Exploited Vulnerabilities JSON feed.
const DefaultKEVURL = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"

type kevEntry struct {
	CVEID                      string `json:"cveID"`
	VendorProject              string `json:"vendorProject"`
	Product                    string `json:"product"`
	VulnerabilityName          string `json:"vulnerabilityName"`
	DateAdded                  string `json:"dateAdded"`
	ShortDescription           string `json:"shortDescription"`
	RequiredAction             string `json:"requiredAction"`
	DueDate                    string `json:"dueDate"`
	KnownRansomwareCampaignUse string `json:"knownRansomwareCampaignUse"`
}

type kevCatalog struct {
	Title           string     `json:"title"`
	CatalogVersion  string     `json:"catalogVersion"`
	DateReleased    string     `json:"dateReleased"`
	Count           int        `json:"count"`
	Vulnerabilities []kevEntry `json:"vulnerabilities"`
}

// KEVFetcher downloads the exploited-vulnerability catalog.
type KEVFetcher struct {
	settings
}

// NewKEVFetcher creates a catalog fetcher.
func NewKEVFetcher(opts ...Option) *KEVFetcher {
	return &KEVFetcher{settings: newSettings(DefaultKEVURL, opts)}
}

// Name implements ports.SourceFetcher.
func (f *KEVFetcher) Name() domain.Source {
	return domain.SourceExploitedCatalog
}

// Fetch returns catalog entries added within the last windowDays.
// windowDays <= 0 returns the whole catalog.
func (f *KEVFetcher) Fetch(ctx context.Context, windowDays int) ([]domain.VulnerabilityRecord, error) {
	var catalog kevCatalog
	if err := upstream.GetJSON(ctx, f.httpClient, f.baseURL, nil, &catalog); err != nil {
		return nil, &domain.SourceError{Source: f.Name(), Op: "fetch", Err: err}
	}

	start, bounded := windowStart(f.now(), windowDays)
	cutoff := start.Format("2006-01-02")

	records := make([]domain.VulnerabilityRecord, 0, len(catalog.Vulnerabilities))
	skipped := 0
	for _, e := range catalog.Vulnerabilities {
		if strings.TrimSpace(e.CVEID) == "" {
			skipped++
			continue
		}
		if bounded && e.DateAdded < cutoff {
			continue
		}
		records = append(records, e.toRecord())
	}

	if skipped > 0 {
		slog.Debug("skipped malformed KEV entries", "count", skipped)
	}
	return records, nil
}

func (e kevEntry) toRecord() domain.VulnerabilityRecord {
	r := domain.NewRecord(strings.TrimSpace(e.CVEID), domain.SourceExploitedCatalog)
	if v := strings.TrimSpace(e.VendorProject); v != "" {
		r.Vendor = v
	}
	if p := strings.TrimSpace(e.Product); p != "" {
		r.Product = p
	}
	r.Title = e.VulnerabilityName
	r.ShortDescription = e.ShortDescription
	r.DateAdded = e.DateAdded
	r.RansomwareAssociated = strings.EqualFold(strings.TrimSpace(e.KnownRansomwareCampaignUse), "Known")
	return r
}
