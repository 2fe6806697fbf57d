package domain

import "errors"

// DefaultPageSize applies when a request does not name one.
const DefaultPageSize = 20

// MaxPageSize bounds a single page.
const MaxPageSize = 500

// PageRequest selects one page of a ranked list. Page is 1-based.
type PageRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize fills defaults and clamps out-of-range values.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// PageResult is what the pipeline hands to the presentation layer.
type PageResult struct {
	Records []VulnerabilityRecord `json:"records"`

	// TotalCount is the number of records that passed the filters,
	// before the intent limit and before pagination.
	TotalCount  int `json:"total_count"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	PageSize    int `json:"page_size"`

	// FailedSources lists sources that degraded to empty for this run.
	FailedSources []Source `json:"failed_sources,omitempty"`

	// Warnings carries non-fatal conditions such as ErrNoResultsAfterFiltering.
	Warnings []error `json:"-"`
}

// HasWarning reports whether target is among the page warnings.
func (p PageResult) HasWarning(target error) bool {
	for _, w := range p.Warnings {
		if errors.Is(w, target) {
			return true
		}
	}
	return false
}

// Paginate cuts one page from records. totalCount is reported as given.
func Paginate(records []VulnerabilityRecord, totalCount int, req PageRequest) PageResult {
	req = req.Normalize()

	pages := (len(records) + req.PageSize - 1) / req.PageSize
	if pages == 0 {
		pages = 1
	}

	start := (req.Page - 1) * req.PageSize
	if start > len(records) {
		start = len(records)
	}
	end := start + req.PageSize
	if end > len(records) {
		end = len(records)
	}

	return PageResult{
		Records:     records[start:end],
		TotalCount:  totalCount,
		CurrentPage: req.Page,
		TotalPages:  pages,
		PageSize:    req.PageSize,
	}
}
