package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/presentation"
)

// PDFExporter renders an answer page to PDF
type PDFExporter struct {
	Title string
}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{Title: "CyberIQ Vulnerability Report"}
}

// ExportAnswer generates an A4 report from one query answer: header, priority
// overview, the ranked records of the page and the narrative.
func (e *PDFExporter) ExportAnswer(answer domain.QueryAnswer) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetFooterFunc(func() { e.addFooter(pdf, answer) })
	pdf.AddPage()

	e.addHeader(pdf, tr, answer)
	e.addOverview(pdf, presentation.Summarize(answer.Page))
	e.addRecords(pdf, tr, answer.Page)
	e.addNarrative(pdf, tr, answer.Narrative)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, tr func(string) string, answer domain.QueryAnswer) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, e.Title, "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 13)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("Query: %q", answer.Query)), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", answer.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	if len(answer.Sources) > 0 {
		pdf.CellFormat(0, 6, "Sources: "+strings.Join(answer.Sources, ", "), "", 1, "L", false, 0, "")
	}
	for _, w := range answer.Warnings {
		pdf.SetTextColor(220, 53, 69)
		pdf.CellFormat(0, 6, tr("Warning: "+w), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addOverview(pdf *gofpdf.Fpdf, sum domain.Summary) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Overview", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	stats := []struct {
		label string
		value int
		color []int
	}{
		{"Total Matches", sum.TotalCount, []int{0, 102, 204}},
		{"On This Page", sum.PageCount, []int{0, 102, 204}},
		{"Urgent", sum.ByPriority[domain.PriorityUrgent], priorityColor(domain.PriorityUrgent)},
		{"High", sum.ByPriority[domain.PriorityHigh], priorityColor(domain.PriorityHigh)},
		{"Medium", sum.ByPriority[domain.PriorityMedium], priorityColor(domain.PriorityMedium)},
		{"Low", sum.ByPriority[domain.PriorityLow], priorityColor(domain.PriorityLow)},
		{"Unscored", sum.ByPriority[domain.PriorityUnknown], priorityColor(domain.PriorityUnknown)},
		{"Ransomware", sum.Ransomware, []int{220, 53, 69}},
	}

	colWidth := 85.0
	for i, stat := range stats {
		x := 20.0
		if i%2 == 1 {
			x = 105.0
		}
		pdf.SetXY(x, pdf.GetY())

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(50, 7, stat.label+":", "", 0, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(stat.color[0], stat.color[1], stat.color[2])
		pdf.CellFormat(colWidth-50, 7, fmt.Sprintf("%d", stat.value), "", 0, "R", false, 0, "")

		if i%2 == 1 {
			pdf.Ln(7)
		}
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addRecords(pdf *gofpdf.Fpdf, tr func(string) string, page domain.PageResult) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, fmt.Sprintf("Vulnerabilities (page %d of %d)", page.CurrentPage, max(page.TotalPages, 1)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	if len(page.Records) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No vulnerabilities matched", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	header := func() {
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Arial", "B", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(10, 8, "#", "1", 0, "C", true, 0, "")
		pdf.CellFormat(34, 8, "ID", "1", 0, "L", true, 0, "")
		pdf.CellFormat(18, 8, "Source", "1", 0, "C", true, 0, "")
		pdf.CellFormat(14, 8, "CVSS", "1", 0, "C", true, 0, "")
		pdf.CellFormat(14, 8, "EPSS", "1", 0, "C", true, 0, "")
		pdf.CellFormat(20, 8, "Priority", "1", 0, "C", true, 0, "")
		pdf.CellFormat(80, 8, "Title", "1", 1, "L", true, 0, "")
	}
	header()

	first := (page.CurrentPage-1)*page.PageSize + 1
	if page.CurrentPage < 1 || page.PageSize < 1 {
		first = 1
	}

	pdf.SetFont("Arial", "", 8)
	for i, r := range page.Records {
		if pdf.GetY() > 265 {
			pdf.AddPage()
			header()
			pdf.SetFont("Arial", "", 8)
		}

		c := priorityColor(r.PriorityLabel)
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(10, 7, fmt.Sprintf("%d", first+i), "1", 0, "C", false, 0, "")

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(34, 7, r.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(18, 7, strings.ToUpper(string(r.Source)), "1", 0, "C", false, 0, "")

		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(14, 7, scoreText(r.SeverityScore, "%.1f"), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(14, 7, scoreText(r.ExploitProbability, "%.1f%%"), "1", 0, "C", false, 0, "")
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(20, 7, string(r.PriorityLabel), "1", 0, "C", false, 0, "")

		title := r.Title
		if r.RansomwareAssociated {
			title = "[R] " + title
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(80, 7, tr(presentation.Truncate(title, 48)), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addNarrative(pdf *gofpdf.Fpdf, tr func(string) string, narrative string) {
	if strings.TrimSpace(narrative) == "" {
		return
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Analysis", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(60, 60, 60)
	pdf.MultiCell(0, 5, tr(narrative), "", "L", false)
}

// addFooter runs on every page
func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, answer domain.QueryAnswer) {
	pdf.SetY(-20)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	id := answer.ID
	if len(id) > 8 {
		id = id[:8]
	}
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated by CyberIQ | Answer ID: %s | Page %d", id, pdf.PageNo()), "", 1, "C", false, 0, "")
}

// priorityColor returns RGB color based on priority
func priorityColor(p domain.PriorityLabel) []int {
	switch p {
	case domain.PriorityUrgent:
		return []int{220, 53, 69} // Red
	case domain.PriorityHigh:
		return []int{255, 149, 0} // Orange
	case domain.PriorityMedium:
		return []int{204, 163, 0} // Dark yellow
	case domain.PriorityLow:
		return []int{52, 199, 89} // Green
	default:
		return []int{150, 150, 150}
	}
}

func scoreText(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
