package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleRecord() VulnerabilityRecord {
	r := NewRecord("CVE-2024-3400", SourceExploitedCatalog)
	r.Vendor = "Palo Alto Networks"
	r.Product = "PAN-OS"
	r.Title = "Palo Alto Networks PAN-OS Command Injection"
	r.ShortDescription = "GlobalProtect gateway allows remote code execution."
	r.DateAdded = "2024-04-12"
	return r
}

func TestRecordFilter_Matches(t *testing.T) {
	r := sampleRecord()

	tests := []struct {
		name   string
		filter RecordFilter
		want   bool
	}{
		{"empty filter", RecordFilter{}, true},
		{"source match", RecordFilter{Sources: []Source{SourceExploitedCatalog}}, true},
		{"source mismatch", RecordFilter{Sources: []Source{SourceAdvisoryFeed}}, false},
		{"keyword in title", RecordFilter{Keywords: []string{"injection"}}, true},
		{"keyword in description, mixed case", RecordFilter{Keywords: []string{"GLOBALPROTECT"}}, true},
		{"keywords are OR-matched", RecordFilter{Keywords: []string{"sharepoint", "pan-os"}}, true},
		{"no keyword hit", RecordFilter{Keywords: []string{"exchange"}}, false},
		{"vendor substring", RecordFilter{Vendor: "palo alto"}, true},
		{"vendor mismatch", RecordFilter{Vendor: "fortinet"}, false},
		{"year prefix", RecordFilter{Year: "2024"}, true},
		{"month prefix", RecordFilter{Year: "2024-04"}, true},
		{"year mismatch", RecordFilter{Year: "2023"}, false},
		{"conjunctive", RecordFilter{Vendor: "palo", Year: "2023"}, false},
		{"since before added", RecordFilter{Since: "2024-03-13"}, true},
		{"since on added day", RecordFilter{Since: "2024-04-12"}, true},
		{"since after added", RecordFilter{Since: "2024-04-13"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(r))
		})
	}
}

func TestRecordFilter_Validate(t *testing.T) {
	assert.NoError(t, RecordFilter{Year: "2024"}.Validate())
	assert.NoError(t, RecordFilter{Year: "2024-03"}.Validate())
	assert.ErrorIs(t, RecordFilter{Year: "24"}.Validate(), ErrInvalidYearFilter)
	assert.NoError(t, RecordFilter{Since: "2024-03-01"}.Validate())
	assert.ErrorIs(t, RecordFilter{Since: "2024-03"}.Validate(), ErrInvalidSince)
}

func TestRecordFilter_SinceSkipsUndated(t *testing.T) {
	r := sampleRecord()
	r.DateAdded = ""
	assert.False(t, RecordFilter{Since: "2000-01-01"}.Matches(r))
}

func TestRecordFilter_ApplyPreservesOrder(t *testing.T) {
	a := sampleRecord()
	b := NewRecord("CVE-2024-0002", SourceVulnerabilityDatabase)
	b.Title = "Unrelated"
	c := sampleRecord()
	c.ID = "CVE-2024-0003"

	out := RecordFilter{Keywords: []string{"pan-os"}}.Apply([]VulnerabilityRecord{a, b, c})
	assert.Len(t, out, 2)
	assert.Equal(t, "CVE-2024-3400", out[0].ID)
	assert.Equal(t, "CVE-2024-0003", out[1].ID)
}
