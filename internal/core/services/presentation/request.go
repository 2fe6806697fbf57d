package presentation

import (
	"fmt"
	"strings"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// DescriptionLimit is the number of characters of a description kept in a
// context line.
const DescriptionLimit = 150

// MaxContextLines bounds the records described to the narrative generator.
const MaxContextLines = 20

// TechniqueDescriptionLimit is the description cut of a technique line.
const TechniqueDescriptionLimit = 200

// BuildRequest turns one result page into the narrative boundary object.
func BuildRequest(query string, page domain.PageResult) domain.NarrativeRequest {
	records := page.Records
	if len(records) > MaxContextLines {
		records = records[:MaxContextLines]
	}

	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, ContextLine(r))
	}

	return domain.NarrativeRequest{
		Query:        query,
		Summary:      Summarize(page),
		ContextLines: lines,
		CurrentPage:  page.CurrentPage,
		TotalPages:   page.TotalPages,
	}
}

// AttachTechniques adds one context line per ATT&CK technique to req.
func AttachTechniques(req domain.NarrativeRequest, techniques []domain.Technique) domain.NarrativeRequest {
	lines := make([]string, 0, len(techniques))
	for _, t := range techniques {
		lines = append(lines, TechniqueLine(t))
	}
	req.Techniques = lines
	return req
}

// TechniqueLine renders one technique as a single line.
func TechniqueLine(t domain.Technique) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MITRE %s: %s", t.ID, t.Name)
	if len(t.Tactics) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(t.Tactics, ", "))
	}
	if d := Truncate(t.Description, TechniqueDescriptionLimit); d != "" {
		fmt.Fprintf(&b, " - %s", d)
	}
	return b.String()
}

// Summarize counts the page records by source and priority.
func Summarize(page domain.PageResult) domain.Summary {
	s := domain.Summary{
		TotalCount: page.TotalCount,
		PageCount:  len(page.Records),
		BySource:   make(map[domain.Source]int),
		ByPriority: make(map[domain.PriorityLabel]int),
	}
	for _, r := range page.Records {
		s.BySource[r.Source]++
		s.ByPriority[r.PriorityLabel]++
		if r.RansomwareAssociated {
			s.Ransomware++
		}
	}
	return s
}

// ContextLine renders one record as a single line of facts.
func ContextLine(r domain.VulnerabilityRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s", r.Source.DisplayName(), r.ID)
	if r.Title != "" && r.Title != r.ID {
		fmt.Fprintf(&b, ": %s", r.Title)
	}
	if !r.HasPlaceholderVendor() {
		fmt.Fprintf(&b, " (%s", r.Vendor)
		if !r.HasPlaceholderProduct() {
			fmt.Fprintf(&b, " %s", r.Product)
		}
		b.WriteString(")")
	}
	if r.SeverityScore != nil {
		fmt.Fprintf(&b, " [CVSS: %.1f %s]", *r.SeverityScore, r.SeverityBand)
	}
	if r.CWE != "" {
		fmt.Fprintf(&b, " [%s]", r.CWE)
	}
	if r.Source == domain.SourceExploitedCatalog {
		b.WriteString(" [CISA: KNOWN EXPLOITED]")
	}
	if r.RansomwareAssociated {
		b.WriteString(" [RANSOMWARE]")
	}
	if r.ExploitProbability != nil {
		fmt.Fprintf(&b, " [EPSS: %.1f%%]", *r.ExploitProbability)
	}
	fmt.Fprintf(&b, " [PRIORITY: %s]", r.PriorityLabel)
	if r.DateAdded != "" {
		fmt.Fprintf(&b, " [ADDED: %s]", r.DateAdded)
	}
	if d := Truncate(r.ShortDescription, DescriptionLimit); d != "" {
		fmt.Fprintf(&b, " - %s", d)
	}
	return b.String()
}

// Truncate cuts s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
