package domain

// Stage is one step of a query's lifecycle.
type Stage string

const (
	StageResolving  Stage = "resolving"
	StageFetching   Stage = "fetching"
	StageMerging    Stage = "merging"
	StageFiltering  Stage = "filtering"
	StageSorting    Stage = "sorting"
	StageEnriching  Stage = "enriching"
	StagePaginating Stage = "paginating"
	StageDone       Stage = "done"
)

// FetchState is the per-source sub-state inside StageFetching.
type FetchState string

const (
	FetchPending  FetchState = "pending"
	FetchCacheHit FetchState = "cache_hit"
	FetchFetched  FetchState = "fetched"
	FetchFailed   FetchState = "failed"
)

// FetchResult is what a source adapter hands back. Records is empty when
// State is FetchFailed; Err then carries the cause for logging.
type FetchResult struct {
	Source  Source
	Records []VulnerabilityRecord
	State   FetchState
	Err     error
}

// StageEvent is published on every lifecycle transition.
type StageEvent struct {
	QueryID string     `json:"query_id"`
	Stage   Stage      `json:"stage"`
	Source  Source     `json:"source,omitempty"`
	State   FetchState `json:"state,omitempty"`
	Count   int        `json:"count"`
}
