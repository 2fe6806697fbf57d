package domain

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Domain Errors for filtering
var (
	ErrInvalidYearFilter = errors.New("year filter must look like YYYY, YYYY-MM or YYYY-MM-DD")
	ErrInvalidSince      = errors.New("since cutoff must look like YYYY-MM-DD")
)

var (
	yearFilterPattern = regexp.MustCompile(`^\d{4}(-\d{2}(-\d{2})?)?$`)
	sincePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// RecordFilter defines the selection criteria applied to a merged record set.
// Every set criterion must hold; keywords are OR-matched among themselves.
type RecordFilter struct {
	Sources  []Source `json:"sources"`  // empty = any
	Keywords []string `json:"keywords"` // any keyword in title+description
	Vendor   string   `json:"vendor"`   // substring, case-insensitive
	Year     string   `json:"year"`     // prefix of DateAdded
	Since    string   `json:"since"`    // DateAdded on or after, YYYY-MM-DD
}

// Validate rejects malformed year prefixes and cutoffs.
func (f RecordFilter) Validate() error {
	if f.Year != "" && !yearFilterPattern.MatchString(f.Year) {
		return ErrInvalidYearFilter
	}
	if f.Since != "" && !sincePattern.MatchString(f.Since) {
		return ErrInvalidSince
	}
	return nil
}

// Matches reports whether r satisfies the filter.
func (f RecordFilter) Matches(r VulnerabilityRecord) bool {
	if len(f.Sources) > 0 && !containsSource(f.Sources, r.Source) {
		return false
	}

	if len(f.Keywords) > 0 && !MatchesAnyKeyword(r.SearchText(), f.Keywords) {
		return false
	}

	if f.Vendor != "" && !strings.Contains(Fold(r.Vendor), Fold(f.Vendor)) {
		return false
	}

	if f.Year != "" && !strings.HasPrefix(r.DateAdded, f.Year) {
		return false
	}

	// ISO dates order lexicographically; undated records fail a cutoff
	if f.Since != "" && (r.DateAdded == "" || r.DateAdded < f.Since) {
		return false
	}

	return true
}

// Apply returns the records that match, preserving order.
func (f RecordFilter) Apply(records []VulnerabilityRecord) []VulnerabilityRecord {
	out := make([]VulnerabilityRecord, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// MatchesAnyKeyword reports whether any keyword occurs in text, ignoring case.
func MatchesAnyKeyword(text string, keywords []string) bool {
	folded := Fold(text)
	for _, kw := range keywords {
		kw = Fold(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// Fold returns the case-folded form of s for caseless comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func containsSource(sources []Source, s Source) bool {
	for _, src := range sources {
		if src == s {
			return true
		}
	}
	return false
}
