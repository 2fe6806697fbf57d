package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

func sample() []domain.VulnerabilityRecord {
	a := domain.NewRecord("CVE-2021-44228", domain.SourceExploitedCatalog)
	a.Vendor = "Apache"
	a.Product = "Log4j2"
	a.Title = "Log4Shell, \"JNDI\" lookup"
	a.DateAdded = "2021-12-10"
	a.RansomwareAssociated = true
	a.SetSeverity(10)
	a.SetExploit(97.4)

	b := domain.NewRecord("ZDI-24-001", domain.SourceAdvisoryFeed)
	return []domain.VulnerabilityRecord{a, b}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, sample()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "CVE-2021-44228", rows[1][0])
	assert.Equal(t, `Log4Shell, "JNDI" lookup`, rows[1][4])
	assert.Equal(t, "10.0", rows[1][6])
	assert.Equal(t, "CRITICAL", rows[1][7])
	assert.Equal(t, "97.4", rows[1][10])
	assert.Equal(t, "true", rows[1][12])
	assert.Equal(t, "URGENT", rows[1][13])

	assert.Equal(t, "", rows[2][6], "unset score is blank")
	assert.Equal(t, "UNKNOWN", rows[2][13])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, sample()))

	var out []domain.VulnerabilityRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, 10.0, *out[0].SeverityScore)
	assert.Nil(t, out[1].SeverityScore)

	buf.Reset()
	require.NoError(t, ExportJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
