package nvdapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCVE = `{
  "id": "CVE-2021-41773",
  "published": "2021-10-05T09:15:07.593",
  "descriptions": [
    {"lang": "es", "value": "Falla"},
    {"lang": "en", "value": "A path traversal flaw in Apache HTTP Server 2.4.49."}
  ],
  "metrics": {
    "cvssMetricV31": [
      {"source": "other", "type": "Secondary", "cvssData": {"version": "3.1", "baseScore": 7.1, "baseSeverity": "HIGH"}},
      {"source": "nvd@nist.gov", "type": "Primary", "cvssData": {"version": "3.1", "baseScore": 7.5, "baseSeverity": "HIGH"}}
    ],
    "cvssMetricV2": [
      {"type": "Primary", "cvssData": {"version": "2.0", "baseScore": 4.3}, "baseSeverity": "MEDIUM"}
    ]
  },
  "weaknesses": [{"description": [{"lang": "en", "value": "NVD-CWE-Other"}, {"lang": "en", "value": "CWE-22"}]}],
  "configurations": [{"nodes": [{"cpeMatch": [
    {"vulnerable": false, "criteria": "cpe:2.3:o:fedoraproject:fedora:34:*:*:*:*:*:*:*"},
    {"vulnerable": true, "criteria": "cpe:2.3:a:apache:http_server:2.4.49:*:*:*:*:*:*:*"}
  ]}]}]
}`

func TestCVE_Accessors(t *testing.T) {
	var c CVE
	require.NoError(t, json.Unmarshal([]byte(sampleCVE), &c))

	score, ok := c.BestScore()
	require.True(t, ok)
	assert.Equal(t, 7.5, score.Value)
	assert.Equal(t, "3.1", score.Version)
	assert.Equal(t, "HIGH", score.Severity)

	assert.Equal(t, "CWE-22", c.FirstCWE())
	assert.Equal(t, "A path traversal flaw in Apache HTTP Server 2.4.49.", c.Description())

	vendor, product, ok := c.VendorProduct()
	require.True(t, ok)
	assert.Equal(t, "apache", vendor)
	assert.Equal(t, "http server", product)
}

func TestBestScore_FallsBackToV2(t *testing.T) {
	c := CVE{Metrics: Metrics{V2: []Metric{{CVSSData: CVSSData{BaseScore: 7.2}}}}}
	score, ok := c.BestScore()
	require.True(t, ok)
	assert.Equal(t, "2.0", score.Version)
	assert.Equal(t, "HIGH", score.Severity)

	_, ok = CVE{}.BestScore()
	assert.False(t, ok)
}

func TestV2Severity(t *testing.T) {
	assert.Equal(t, "HIGH", V2Severity(7.0))
	assert.Equal(t, "MEDIUM", V2Severity(4.0))
	assert.Equal(t, "LOW", V2Severity(3.9))
}
