package domain

import "strings"

// Source identifies the feed a record originated from.
type Source string

const (
	SourceExploitedCatalog      Source = "kev"
	SourceAdvisoryFeed          Source = "advisory"
	SourceVulnerabilityDatabase Source = "nvd"
)

// AllSources lists every source in merge precedence order.
var AllSources = []Source{
	SourceExploitedCatalog,
	SourceAdvisoryFeed,
	SourceVulnerabilityDatabase,
}

// Precedence returns the merge rank of a source. Lower wins.
func (s Source) Precedence() int {
	for i, src := range AllSources {
		if src == s {
			return i
		}
	}
	return len(AllSources)
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return s.Precedence() < len(AllSources)
}

// DisplayName is the human label used in narratives and exports.
func (s Source) DisplayName() string {
	switch s {
	case SourceExploitedCatalog:
		return "CISA KEV"
	case SourceAdvisoryFeed:
		return "Advisory Feed"
	case SourceVulnerabilityDatabase:
		return "NVD"
	default:
		return string(s)
	}
}

// ParseSource maps a free-form name onto a Source.
func ParseSource(name string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kev", "kevs", "cisa", "exploited", "exploitedcatalog", "exploited_catalog":
		return SourceExploitedCatalog, true
	case "nvd", "vulnerabilitydatabase", "vulnerability_database", "database":
		return SourceVulnerabilityDatabase, true
	case "advisory", "advisories", "advisoryfeed", "advisory_feed", "rss", "feed":
		return SourceAdvisoryFeed, true
	}
	return "", false
}

// Placeholder values used when a source omits vendor or product.
const (
	UnknownVendor  = "Unknown"
	VariousProduct = "Various"
)

// VulnerabilityRecord is the canonical unit every source is normalised into.
type VulnerabilityRecord struct {
	ID                   string        `json:"id"`
	Source               Source        `json:"source"`
	Vendor               string        `json:"vendor"`
	Product              string        `json:"product"`
	Title                string        `json:"title"`
	ShortDescription     string        `json:"short_description"`
	DateAdded            string        `json:"date_added"`
	SeverityScore        *float64      `json:"severity_score,omitempty"`
	SeverityVersion      string        `json:"severity_version,omitempty"`
	SeverityBand         SeverityBand  `json:"severity_band"`
	CWE                  string        `json:"cwe,omitempty"`
	ExploitProbability   *float64      `json:"exploit_probability,omitempty"`
	ExploitPercentile    *float64      `json:"exploit_percentile,omitempty"`
	RansomwareAssociated bool          `json:"ransomware_associated"`
	PriorityLabel        PriorityLabel `json:"priority_label"`
	Link                 string        `json:"link,omitempty"`
}

// NewRecord builds a record with placeholder defaults applied and derived
// labels computed.
func NewRecord(id string, source Source) VulnerabilityRecord {
	r := VulnerabilityRecord{
		ID:      id,
		Source:  source,
		Vendor:  UnknownVendor,
		Product: VariousProduct,
	}
	r.Refresh()
	return r
}

// SetSeverity stores a severity score and recomputes derived labels.
func (r *VulnerabilityRecord) SetSeverity(score float64) {
	r.SeverityScore = Float(clamp(score, 0, 10))
	r.Refresh()
}

// SetExploit stores an exploit probability (0-100) and recomputes derived labels.
func (r *VulnerabilityRecord) SetExploit(probability float64) {
	r.ExploitProbability = Float(clamp(probability, 0, 100))
	r.Refresh()
}

// Refresh recomputes SeverityBand and PriorityLabel from the stored scores.
func (r *VulnerabilityRecord) Refresh() {
	r.SeverityBand = BandFor(r.SeverityScore)
	r.PriorityLabel = ComputePriority(r.SeverityScore, r.ExploitProbability)
}

// HasPlaceholderVendor reports whether vendor carries no real information.
func (r VulnerabilityRecord) HasPlaceholderVendor() bool {
	return isPlaceholder(r.Vendor, UnknownVendor)
}

// HasPlaceholderProduct reports whether product carries no real information.
func (r VulnerabilityRecord) HasPlaceholderProduct() bool {
	return isPlaceholder(r.Product, VariousProduct)
}

// SearchText is the text keyword filters match against.
func (r VulnerabilityRecord) SearchText() string {
	return r.Title + " " + r.ShortDescription
}

// Clone returns a deep copy so score pointers are never shared between
// cached and returned records.
func (r VulnerabilityRecord) Clone() VulnerabilityRecord {
	c := r
	c.SeverityScore = copyFloat(r.SeverityScore)
	c.ExploitProbability = copyFloat(r.ExploitProbability)
	c.ExploitPercentile = copyFloat(r.ExploitPercentile)
	return c
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(records []VulnerabilityRecord) []VulnerabilityRecord {
	if records == nil {
		return nil
	}
	out := make([]VulnerabilityRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func isPlaceholder(value, placeholder string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, placeholder)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
