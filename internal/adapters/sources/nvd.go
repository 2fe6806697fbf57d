package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/nvdapi"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/upstream"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

const (
	// DefaultNVDSeverityFloor drops entries scored below HIGH.
	DefaultNVDSeverityFloor = 7.0

	defaultNVDPageSize = 2000
	defaultNVDMaxPages = 50
)

// NVDFetcher pages through the vulnerability database by publish date.
type NVDFetcher struct {
	settings
	floor    float64
	pageSize int
	maxPages int
	pause    time.Duration
}

// NVDOption configures NVD-specific behaviour.
type NVDOption func(*NVDFetcher)

// WithSeverityFloor sets the minimum score kept at fetch time. Zero keeps
// everything, unscored entries included.
func WithSeverityFloor(floor float64) NVDOption {
	return func(f *NVDFetcher) {
		f.floor = floor
	}
}

// WithPageSize sets resultsPerPage.
func WithPageSize(n int) NVDOption {
	return func(f *NVDFetcher) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithPagePause waits between page requests to stay under the public rate limit.
func WithPagePause(d time.Duration) NVDOption {
	return func(f *NVDFetcher) {
		f.pause = d
	}
}

// NewNVDFetcher creates a database fetcher.
func NewNVDFetcher(opts []Option, nvdOpts ...NVDOption) *NVDFetcher {
	f := &NVDFetcher{
		settings: newSettings(nvdapi.DefaultURL, opts),
		floor:    DefaultNVDSeverityFloor,
		pageSize: defaultNVDPageSize,
		maxPages: defaultNVDMaxPages,
	}
	for _, opt := range nvdOpts {
		opt(f)
	}
	return f
}

// Name implements ports.SourceFetcher.
func (f *NVDFetcher) Name() domain.Source {
	return domain.SourceVulnerabilityDatabase
}

// Fetch returns CVEs published within the last windowDays that meet the
// severity floor. Longer windows are split into NVD-sized chunks.
func (f *NVDFetcher) Fetch(ctx context.Context, windowDays int) ([]domain.VulnerabilityRecord, error) {
	if windowDays <= 0 {
		windowDays = nvdapi.MaxWindowDays
	}

	end := f.now().UTC()
	start, _ := windowStart(end, windowDays)

	var records []domain.VulnerabilityRecord
	for chunkStart := start; chunkStart.Before(end); {
		chunkEnd := chunkStart.AddDate(0, 0, nvdapi.MaxWindowDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		chunk, err := f.fetchRange(ctx, chunkStart, chunkEnd)
		if err != nil {
			return nil, &domain.SourceError{Source: f.Name(), Op: "fetch", Err: err}
		}
		records = append(records, chunk...)
		chunkStart = chunkEnd
	}

	return records, nil
}

func (f *NVDFetcher) fetchRange(ctx context.Context, from, to time.Time) ([]domain.VulnerabilityRecord, error) {
	var records []domain.VulnerabilityRecord
	startIndex := 0

	for page := 0; page < f.maxPages; page++ {
		if page > 0 && f.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pause):
			}
		}

		var resp nvdapi.Response
		if err := upstream.GetJSON(ctx, f.httpClient, f.pageURL(from, to, startIndex), f.headers(), &resp); err != nil {
			return nil, err
		}

		for _, v := range resp.Vulnerabilities {
			if r, ok := f.toRecord(v.CVE); ok {
				records = append(records, r)
			}
		}

		startIndex += len(resp.Vulnerabilities)
		if len(resp.Vulnerabilities) == 0 || startIndex >= resp.TotalResults {
			return records, nil
		}
	}

	slog.Warn("NVD page limit reached, window truncated", "from", from.Format(time.DateOnly), "pages", f.maxPages)
	return records, nil
}

func (f *NVDFetcher) pageURL(from, to time.Time, startIndex int) string {
	q := url.Values{}
	q.Set("pubStartDate", from.Format(nvdapi.TimeLayout))
	q.Set("pubEndDate", to.Format(nvdapi.TimeLayout))
	q.Set("resultsPerPage", strconv.Itoa(f.pageSize))
	q.Set("startIndex", strconv.Itoa(startIndex))
	return fmt.Sprintf("%s?%s", f.baseURL, q.Encode())
}

func (f *NVDFetcher) headers() map[string]string {
	if f.apiKey == "" {
		return nil
	}
	return map[string]string{"apiKey": f.apiKey}
}

func (f *NVDFetcher) toRecord(c nvdapi.CVE) (domain.VulnerabilityRecord, bool) {
	if strings.TrimSpace(c.ID) == "" {
		return domain.VulnerabilityRecord{}, false
	}

	score, scored := c.BestScore()
	if f.floor > 0 && (!scored || score.Value < f.floor) {
		return domain.VulnerabilityRecord{}, false
	}

	r := domain.NewRecord(c.ID, domain.SourceVulnerabilityDatabase)
	if vendor, product, ok := c.VendorProduct(); ok {
		if vendor != "" {
			r.Vendor = vendor
		}
		if product != "" {
			r.Product = product
		}
	}
	r.Title = c.ID
	r.ShortDescription = c.Description()
	if len(c.Published) >= len(time.DateOnly) {
		r.DateAdded = c.Published[:len(time.DateOnly)]
	}
	r.CWE = c.FirstCWE()
	if scored {
		r.SeverityVersion = score.Version
		r.SetSeverity(score.Value)
	}
	return r, true
}
