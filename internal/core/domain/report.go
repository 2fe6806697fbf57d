package domain

import "time"

// SeverityScore is one severity provider answer.
type SeverityScore struct {
	Score    float64 `json:"score"`
	Severity string  `json:"severity"`
	Version  string  `json:"version"`
	CWE      string  `json:"cwe,omitempty"`
}

// ExploitScore is one exploit-probability provider answer, both values 0-100.
type ExploitScore struct {
	Probability float64 `json:"probability"`
	Percentile  float64 `json:"percentile"`
}

// Summary holds the counts handed to the narrative generator.
type Summary struct {
	TotalCount int                   `json:"total_count"`
	PageCount  int                   `json:"page_count"`
	BySource   map[Source]int        `json:"by_source"`
	ByPriority map[PriorityLabel]int `json:"by_priority"`
	Ransomware int                   `json:"ransomware"`
}

// NarrativeRequest is the boundary object passed to the narrative generator.
type NarrativeRequest struct {
	Query        string   `json:"query"`
	Summary      Summary  `json:"summary"`
	ContextLines []string `json:"context_lines"`
	Techniques   []string `json:"technique_lines,omitempty"`
	CurrentPage  int      `json:"current_page"`
	TotalPages   int      `json:"total_pages"`
}

// QueryAnswer is the full response to one query.
type QueryAnswer struct {
	ID          string      `json:"id"`
	Query       string      `json:"query"`
	Intent      QueryIntent `json:"intent"`
	Page        PageResult  `json:"page"`
	Narrative   string      `json:"response"`
	Sources     []string    `json:"sources"`
	Techniques  []Technique `json:"techniques,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}
