package aggregator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

func TestMerge_PrecedenceAndGapFill(t *testing.T) {
	kev := domain.NewRecord("CVE-2023-4966", domain.SourceExploitedCatalog)
	kev.Vendor = "Citrix"
	kev.Title = "Citrix Bleed"
	kev.DateAdded = "2023-10-18"
	kev.RansomwareAssociated = true

	nvd := domain.NewRecord("CVE-2023-4966", domain.SourceVulnerabilityDatabase)
	nvd.Vendor = "citrix"
	nvd.Product = "netscaler adc"
	nvd.Title = "CVE-2023-4966"
	nvd.ShortDescription = "Sensitive information disclosure"
	nvd.CWE = "CWE-119"
	nvd.SeverityVersion = "3.1"
	nvd.SetSeverity(9.4)

	adv := domain.NewRecord("CVE-2023-4966", domain.SourceAdvisoryFeed)
	adv.SetSeverity(6.5)
	adv.Link = "https://example.test/adv"

	// input order must not matter for field selection
	out := Merge([]domain.VulnerabilityRecord{nvd}, []domain.VulnerabilityRecord{adv}, []domain.VulnerabilityRecord{kev})
	require.Len(t, out, 1)
	got := out[0]

	assert.Equal(t, domain.SourceExploitedCatalog, got.Source)
	assert.Equal(t, "Citrix", got.Vendor)
	assert.Equal(t, "netscaler adc", got.Product)
	assert.Equal(t, "Citrix Bleed", got.Title)
	assert.Equal(t, "Sensitive information disclosure", got.ShortDescription)
	assert.Equal(t, 6.5, *got.SeverityScore, "advisory outranks the database")
	assert.Equal(t, "CWE-119", got.CWE)
	assert.Equal(t, "https://example.test/adv", got.Link)
	assert.True(t, got.RansomwareAssociated)
	assert.Equal(t, domain.PriorityMedium, got.PriorityLabel)
}

func TestMerge_FirstAppearanceOrder(t *testing.T) {
	a := domain.NewRecord("CVE-1", domain.SourceExploitedCatalog)
	b := domain.NewRecord("CVE-2", domain.SourceExploitedCatalog)
	c := domain.NewRecord("CVE-3", domain.SourceVulnerabilityDatabase)
	a2 := domain.NewRecord("CVE-1", domain.SourceVulnerabilityDatabase)

	out := Merge([]domain.VulnerabilityRecord{a, b}, []domain.VulnerabilityRecord{c, a2})

	var ids []string
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"CVE-1", "CVE-2", "CVE-3"}, ids)
}

func TestMerge_Idempotent(t *testing.T) {
	kev := domain.NewRecord("CVE-2024-0001", domain.SourceExploitedCatalog)
	adv := domain.NewRecord("CVE-2024-0001", domain.SourceAdvisoryFeed)
	adv.SetSeverity(9.0)
	other := domain.NewRecord("ZDI-24-001", domain.SourceAdvisoryFeed)

	lists := [][]domain.VulnerabilityRecord{{kev}, {adv, other}}

	first, err := json.Marshal(Merge(lists...))
	require.NoError(t, err)
	second, err := json.Marshal(Merge(lists...))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	again, err := json.Marshal(Merge(Merge(lists...)))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(again))
}

func TestMerge_DoesNotAliasInputs(t *testing.T) {
	adv := domain.NewRecord("CVE-2024-0001", domain.SourceAdvisoryFeed)
	adv.SetSeverity(5)
	kev := domain.NewRecord("CVE-2024-0001", domain.SourceExploitedCatalog)

	out := Merge([]domain.VulnerabilityRecord{kev}, []domain.VulnerabilityRecord{adv})
	out[0].SetSeverity(1)

	assert.Equal(t, 5.0, *adv.SeverityScore)
}

func TestSort(t *testing.T) {
	a := domain.NewRecord("A", domain.SourceExploitedCatalog)
	a.DateAdded = "2024-01-01"
	b := domain.NewRecord("B", domain.SourceExploitedCatalog)
	b.DateAdded = "2024-05-01"
	b.SetSeverity(4)
	c := domain.NewRecord("C", domain.SourceExploitedCatalog)
	c.DateAdded = "2024-05-01"
	c.SetSeverity(9.8)

	ids := func(rs []domain.VulnerabilityRecord) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	byDate := []domain.VulnerabilityRecord{a, b, c}
	Sort(byDate, domain.SortByDate)
	assert.Equal(t, []string{"B", "C", "A"}, ids(byDate), "ties keep merge order")

	bySeverity := []domain.VulnerabilityRecord{a, b, c}
	Sort(bySeverity, domain.SortBySeverity)
	assert.Equal(t, []string{"C", "B", "A"}, ids(bySeverity), "unscored last")

	none := []domain.VulnerabilityRecord{a, b, c}
	Sort(none, domain.SortByNone)
	assert.Equal(t, []string{"A", "B", "C"}, ids(none))
}
