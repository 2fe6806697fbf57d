package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecords(n int) []VulnerabilityRecord {
	out := make([]VulnerabilityRecord, n)
	for i := range out {
		out[i] = NewRecord(fmt.Sprintf("CVE-2024-%04d", i), SourceVulnerabilityDatabase)
	}
	return out
}

func TestPaginate(t *testing.T) {
	records := makeRecords(45)

	p := Paginate(records, 120, PageRequest{Page: 2, PageSize: 20})
	require.Len(t, p.Records, 20)
	assert.Equal(t, "CVE-2024-0020", p.Records[0].ID)
	assert.Equal(t, 120, p.TotalCount)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.CurrentPage)

	last := Paginate(records, 45, PageRequest{Page: 3, PageSize: 20})
	assert.Len(t, last.Records, 5)

	beyond := Paginate(records, 45, PageRequest{Page: 9, PageSize: 20})
	assert.Empty(t, beyond.Records)
}

func TestPaginate_EmptyAndDefaults(t *testing.T) {
	p := Paginate(nil, 0, PageRequest{})
	assert.Empty(t, p.Records)
	assert.Equal(t, 1, p.TotalPages)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Equal(t, DefaultPageSize, p.PageSize)
}

func TestPageRequest_Normalize(t *testing.T) {
	assert.Equal(t, PageRequest{Page: 1, PageSize: MaxPageSize}, PageRequest{Page: -3, PageSize: 10000}.Normalize())
}

func TestPageResult_HasWarning(t *testing.T) {
	p := PageResult{Warnings: []error{fmt.Errorf("kev: %w", ErrNoResultsAfterFiltering)}}
	assert.True(t, p.HasWarning(ErrNoResultsAfterFiltering))
	assert.False(t, p.HasWarning(ErrAllSourcesFailed))
}
