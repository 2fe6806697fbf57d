package aggregator

import (
	"sort"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// Merge folds the given record lists into one list with unique ids.
//
// For an id reported more than once, the record from the source with the
// best precedence keeps its provenance and its populated fields. Fields it
// lacks are filled from the other reports in precedence order. Output order
// is the order in which ids first appear, so passing the lists in
// precedence order yields catalog entries first.
func Merge(lists ...[]domain.VulnerabilityRecord) []domain.VulnerabilityRecord {
	groups := make(map[string][]domain.VulnerabilityRecord)
	var order []string

	for _, list := range lists {
		for _, r := range list {
			if r.ID == "" {
				continue
			}
			if _, seen := groups[r.ID]; !seen {
				order = append(order, r.ID)
			}
			groups[r.ID] = append(groups[r.ID], r)
		}
	}

	out := make([]domain.VulnerabilityRecord, 0, len(order))
	for _, id := range order {
		out = append(out, mergeGroup(groups[id]))
	}
	return out
}

func mergeGroup(reports []domain.VulnerabilityRecord) domain.VulnerabilityRecord {
	ranked := make([]domain.VulnerabilityRecord, len(reports))
	copy(ranked, reports)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Source.Precedence() < ranked[j].Source.Precedence()
	})

	merged := ranked[0].Clone()
	for _, other := range ranked[1:] {
		gapFill(&merged, other)
	}
	merged.Refresh()
	return merged
}

// gapFill copies into dst every field dst lacks and src carries.
// Provenance is never copied.
func gapFill(dst *domain.VulnerabilityRecord, src domain.VulnerabilityRecord) {
	if dst.HasPlaceholderVendor() && !src.HasPlaceholderVendor() {
		dst.Vendor = src.Vendor
	}
	if dst.HasPlaceholderProduct() && !src.HasPlaceholderProduct() {
		dst.Product = src.Product
	}
	if (dst.Title == "" || dst.Title == dst.ID) && src.Title != "" && src.Title != src.ID {
		dst.Title = src.Title
	}
	if dst.ShortDescription == "" {
		dst.ShortDescription = src.ShortDescription
	}
	if dst.DateAdded == "" {
		dst.DateAdded = src.DateAdded
	}
	if dst.SeverityScore == nil && src.SeverityScore != nil {
		dst.SeverityScore = domain.Float(*src.SeverityScore)
		if dst.SeverityVersion == "" {
			dst.SeverityVersion = src.SeverityVersion
		}
	}
	if dst.CWE == "" {
		dst.CWE = src.CWE
	}
	if dst.ExploitProbability == nil && src.ExploitProbability != nil {
		dst.ExploitProbability = domain.Float(*src.ExploitProbability)
	}
	if dst.ExploitPercentile == nil && src.ExploitPercentile != nil {
		dst.ExploitPercentile = domain.Float(*src.ExploitPercentile)
	}
	if dst.Link == "" {
		dst.Link = src.Link
	}
	dst.RansomwareAssociated = dst.RansomwareAssociated || src.RansomwareAssociated
}
