package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

// Header is the CSV column order.
var Header = []string{
	"ID", "Source", "Vendor", "Product", "Title", "DateAdded",
	"SeverityScore", "SeverityBand", "SeverityVersion", "CWE",
	"ExploitProbability", "ExploitPercentile", "Ransomware", "Priority",
	"Link", "Description",
}

// ExportJSON writes records as an indented JSON array
func ExportJSON(w io.Writer, records []domain.VulnerabilityRecord) error {
	if records == nil {
		records = []domain.VulnerabilityRecord{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

// ExportCSV writes records as CSV with headers. Unset scores are empty cells.
func ExportCSV(w io.Writer, records []domain.VulnerabilityRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.ID,
			string(r.Source),
			r.Vendor,
			r.Product,
			r.Title,
			r.DateAdded,
			formatScore(r.SeverityScore),
			string(r.SeverityBand),
			r.SeverityVersion,
			r.CWE,
			formatScore(r.ExploitProbability),
			formatScore(r.ExploitPercentile),
			strconv.FormatBool(r.RansomwareAssociated),
			string(r.PriorityLabel),
			r.Link,
			r.ShortDescription,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", *v)
}
