// Package nvdapi holds the NVD CVE API 2.0 wire types shared by the NVD
// source adapter and the CVSS enrichment provider.
package nvdapi

import (
	"strings"
)

// DefaultURL is the NVD CVE API 2.0 endpoint.
const DefaultURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"

// TimeLayout is the timestamp format NVD accepts for pubStartDate/pubEndDate.
const TimeLayout = "2006-01-02T15:04:05.000"

// MaxWindowDays is the largest publish-date range NVD accepts per request.
const MaxWindowDays = 120

// Response is one page of the CVE API.
type Response struct {
	ResultsPerPage  int             `json:"resultsPerPage"`
	StartIndex      int             `json:"startIndex"`
	TotalResults    int             `json:"totalResults"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
}

// Vulnerability wraps one CVE item.
type Vulnerability struct {
	CVE CVE `json:"cve"`
}

// CVE is the subset of the NVD CVE object this service reads.
type CVE struct {
	ID             string          `json:"id"`
	Published      string          `json:"published"`
	LastModified   string          `json:"lastModified"`
	VulnStatus     string          `json:"vulnStatus"`
	Descriptions   []LangString    `json:"descriptions"`
	Metrics        Metrics         `json:"metrics"`
	Weaknesses     []Weakness      `json:"weaknesses"`
	Configurations []Configuration `json:"configurations"`
}

// LangString is a localized text value.
type LangString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

// Metrics groups the CVSS metric lists by version.
type Metrics struct {
	V31 []Metric `json:"cvssMetricV31"`
	V30 []Metric `json:"cvssMetricV30"`
	V2  []Metric `json:"cvssMetricV2"`
}

// Metric is one scoring entry. V2 entries carry BaseSeverity outside CVSSData.
type Metric struct {
	Source       string   `json:"source"`
	Type         string   `json:"type"`
	CVSSData     CVSSData `json:"cvssData"`
	BaseSeverity string   `json:"baseSeverity"`
}

// CVSSData is the score block of a metric.
type CVSSData struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

// Weakness lists CWE identifiers.
type Weakness struct {
	Source      string       `json:"source"`
	Type        string       `json:"type"`
	Description []LangString `json:"description"`
}

// Configuration holds CPE match nodes.
type Configuration struct {
	Nodes []struct {
		CPEMatch []struct {
			Vulnerable bool   `json:"vulnerable"`
			Criteria   string `json:"criteria"`
		} `json:"cpeMatch"`
	} `json:"nodes"`
}

// Score is the preferred CVSS reading of a CVE.
type Score struct {
	Value    float64
	Severity string
	Version  string
}

// BestScore picks CVSS v3.1, then v3.0, then v2. Within a version the
// Primary entry wins over Secondary ones.
func (c CVE) BestScore() (Score, bool) {
	if m, ok := pick(c.Metrics.V31); ok {
		return Score{Value: m.CVSSData.BaseScore, Severity: strings.ToUpper(m.CVSSData.BaseSeverity), Version: "3.1"}, true
	}
	if m, ok := pick(c.Metrics.V30); ok {
		return Score{Value: m.CVSSData.BaseScore, Severity: strings.ToUpper(m.CVSSData.BaseSeverity), Version: "3.0"}, true
	}
	if m, ok := pick(c.Metrics.V2); ok {
		sev := strings.ToUpper(m.BaseSeverity)
		if sev == "" {
			sev = V2Severity(m.CVSSData.BaseScore)
		}
		return Score{Value: m.CVSSData.BaseScore, Severity: sev, Version: "2.0"}, true
	}
	return Score{}, false
}

// V2Severity derives a band for CVSS v2 scores, which carry none of their own.
func V2Severity(score float64) string {
	switch {
	case score >= 7.0:
		return "HIGH"
	case score >= 4.0:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func pick(metrics []Metric) (Metric, bool) {
	if len(metrics) == 0 {
		return Metric{}, false
	}
	for _, m := range metrics {
		if strings.EqualFold(m.Type, "Primary") {
			return m, true
		}
	}
	return metrics[0], true
}

// FirstCWE returns the first CWE-* weakness identifier.
func (c CVE) FirstCWE() string {
	for _, w := range c.Weaknesses {
		for _, d := range w.Description {
			if strings.HasPrefix(d.Value, "CWE-") {
				return d.Value
			}
		}
	}
	return ""
}

// Description returns the English description, or the first one available.
func (c CVE) Description() string {
	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(c.Descriptions) > 0 {
		return c.Descriptions[0].Value
	}
	return ""
}

// VendorProduct extracts vendor and product from the first vulnerable CPE,
// e.g. cpe:2.3:a:apache:http_server:2.4.49 -> ("apache", "http server").
func (c CVE) VendorProduct() (string, string, bool) {
	for _, cfg := range c.Configurations {
		for _, node := range cfg.Nodes {
			for _, m := range node.CPEMatch {
				if !m.Vulnerable {
					continue
				}
				parts := strings.Split(m.Criteria, ":")
				if len(parts) < 5 || parts[3] == "*" || parts[3] == "" {
					continue
				}
				return humanize(parts[3]), humanize(parts[4]), true
			}
		}
	}
	return "", "", false
}

func humanize(s string) string {
	if s == "*" || s == "-" {
		return ""
	}
	return strings.ReplaceAll(s, "_", " ")
}
