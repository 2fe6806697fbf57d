package domain

import (
	"fmt"
	"strings"
)

// SortBy selects the ranking key of a result list.
type SortBy string

const (
	SortByDate     SortBy = "date"
	SortBySeverity SortBy = "severity"
	SortByNone     SortBy = "none"
)

// ParseSortBy maps a free-form value onto SortBy, defaulting to SortByNone.
func ParseSortBy(v string) SortBy {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "date", "recent", "newest", "recency":
		return SortByDate
	case "severity", "score", "cvss", "critical":
		return SortBySeverity
	default:
		return SortByNone
	}
}

// QueryIntent is the structured reading of one free-text query.
// It is built per request and never persisted.
type QueryIntent struct {
	Sources      []Source `json:"sources"`
	Keywords     []string `json:"keywords"`
	VendorFilter string   `json:"vendor_filter,omitempty"`
	YearFilter   string   `json:"year_filter,omitempty"`
	AddedSince   string   `json:"added_since,omitempty"`
	Limit        *int     `json:"limit"`
	SortBy       SortBy   `json:"sort_by"`
	Ransomware   bool     `json:"ransomware"`
	ZeroDay      bool     `json:"zero_day"`
	Strategy     string   `json:"strategy,omitempty"`
}

// NewQueryIntent returns the default intent: every source, no filters, no cap.
func NewQueryIntent() QueryIntent {
	return QueryIntent{
		Sources: append([]Source(nil), AllSources...),
		SortBy:  SortByNone,
	}
}

// WithSources restricts the intent to the given sources.
func (q QueryIntent) WithSources(sources ...Source) QueryIntent {
	q.Sources = append([]Source(nil), sources...)
	return q
}

// WithKeywords sets the keyword list.
func (q QueryIntent) WithKeywords(keywords ...string) QueryIntent {
	q.Keywords = append([]string(nil), keywords...)
	return q
}

// WithLimit caps the result list.
func (q QueryIntent) WithLimit(n int) QueryIntent {
	q.Limit = &n
	return q
}

// WithSort sets the sort key.
func (q QueryIntent) WithSort(s SortBy) QueryIntent {
	q.SortBy = s
	return q
}

// Includes reports whether the intent queries the given source.
func (q QueryIntent) Includes(s Source) bool {
	for _, src := range q.Sources {
		if src == s {
			return true
		}
	}
	return false
}

// Validate checks structural consistency.
func (q QueryIntent) Validate() error {
	if len(q.Sources) == 0 {
		return fmt.Errorf("intent has no sources")
	}
	for _, s := range q.Sources {
		if !s.Valid() {
			return fmt.Errorf("unknown source %q", s)
		}
	}
	if q.Limit != nil && *q.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", *q.Limit)
	}
	switch q.SortBy {
	case SortByDate, SortBySeverity, SortByNone, "":
	default:
		return fmt.Errorf("unknown sort key %q", q.SortBy)
	}
	return nil
}

// Filter converts the selection part of the intent into a RecordFilter.
func (q QueryIntent) Filter() RecordFilter {
	return RecordFilter{
		Sources:  q.Sources,
		Keywords: q.Keywords,
		Vendor:   q.VendorFilter,
		Year:     q.YearFilter,
		Since:    q.AddedSince,
	}
}
