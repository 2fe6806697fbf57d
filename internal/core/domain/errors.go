package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure taxonomy.
var (
	// ErrSourceUnavailable marks one source whose upstream failed.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrEnrichmentLookupFailed marks one CVE whose score lookup failed.
	ErrEnrichmentLookupFailed = errors.New("enrichment lookup failed")

	// ErrNoResultsAfterFiltering means sources answered but filters excluded everything.
	ErrNoResultsAfterFiltering = errors.New("no results after filtering")

	// ErrIntentResolutionFailed means no strategy could turn the query into an intent.
	ErrIntentResolutionFailed = errors.New("intent resolution failed")

	// ErrAllSourcesFailed means every requested source was unavailable.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrScoreNotFound means the score provider has no entry for the CVE.
	ErrScoreNotFound = errors.New("score not found")

	// ErrEmptyQuery indicates a blank query string.
	ErrEmptyQuery = errors.New("empty query")

	// ErrInvalidIntent rejects an intent before any source is fetched.
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrRecordNotFound indicates no source carries the requested id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrTechniquesUnavailable marks an answer served without ATT&CK matches.
	ErrTechniquesUnavailable = errors.New("attack techniques unavailable")
)

// SourceError wraps an upstream failure with the source it came from.
type SourceError struct {
	Source Source
	Op     string // e.g. "fetch", "decode"
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s %s failed: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrSourceUnavailable) match any SourceError.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// LookupError wraps a failed score lookup for one CVE.
type LookupError struct {
	Provider string
	CVE      string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup for %s failed: %v", e.Provider, e.CVE, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrEnrichmentLookupFailed) match any LookupError.
func (e *LookupError) Is(target error) bool {
	return target == ErrEnrichmentLookupFailed
}
