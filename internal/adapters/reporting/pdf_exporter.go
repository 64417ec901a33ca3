package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

// PDFExporter renders session attendance reports to PDF for organisers and
// auditors.
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportSessionReport generates a one-page summary of a session report and
// its committed records.
func (e *PDFExporter) ExportSessionReport(report domain.SessionReport, records []domain.AttendanceRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addSummary(pdf, report)
	e.addFlagBreakdown(pdf, report)
	e.addRecommendations(pdf, report)
	e.addRecords(pdf, records)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report domain.SessionReport) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "Presence Verification Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(0, 7, fmt.Sprintf("Session %s", report.SessionID), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (e *PDFExporter) addSummary(pdf *gofpdf.Fpdf, report domain.SessionReport) {
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 9, "Summary", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	rows := [][2]string{
		{"Total responses", fmt.Sprintf("%d", report.TotalResponses)},
		{"Flagged responses", fmt.Sprintf("%d", report.FlaggedResponses)},
		{"Risk distribution", fmt.Sprintf("low %d / medium %d / high %d",
			report.RiskDistribution.Low, report.RiskDistribution.Medium, report.RiskDistribution.High)},
	}
	for _, row := range rows {
		pdf.CellFormat(55, 7, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func (e *PDFExporter) addFlagBreakdown(pdf *gofpdf.Fpdf, report domain.SessionReport) {
	if len(report.FlagTypeCounts) == 0 {
		return
	}

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, "Flags", "", 1, "L", false, 0, "")

	names := make([]string, 0, len(report.FlagTypeCounts))
	for name := range report.FlagTypeCounts {
		names = append(names, name)
	}
	sort.Strings(names)

	pdf.SetFont("Arial", "", 11)
	for _, name := range names {
		pdf.CellFormat(55, 7, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, fmt.Sprintf("%d", report.FlagTypeCounts[name]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func (e *PDFExporter) addRecommendations(pdf *gofpdf.Fpdf, report domain.SessionReport) {
	if len(report.Recommendations) == 0 {
		return
	}

	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(153, 51, 0)
	pdf.CellFormat(0, 9, "Recommendations", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(0, 0, 0)
	for _, rec := range report.Recommendations {
		pdf.CellFormat(0, 7, "- "+rec, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
}

func (e *PDFExporter) addRecords(pdf *gofpdf.Fpdf, records []domain.AttendanceRecord) {
	if len(records) == 0 {
		return
	}

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 9, "Attendance Records", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(55, 7, "Participant", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Outcome", "1", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Risk", "1", 0, "R", true, 0, "")
	pdf.CellFormat(0, 7, "Flags", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, rec := range records {
		flags := "-"
		if tripped := rec.Flags.Tripped(); len(tripped) > 0 {
			flags = fmt.Sprintf("%v", tripped)
		}
		outcome := string(rec.Outcome)
		if rec.Override != nil {
			outcome += " (override)"
		}
		pdf.CellFormat(55, 7, rec.ParticipantID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, outcome, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, fmt.Sprintf("%d", rec.RiskScore), "1", 0, "R", false, 0, "")
		pdf.CellFormat(0, 7, flags, "1", 1, "L", false, 0, "")
	}
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report domain.SessionReport) {
	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	generated := time.UnixMilli(report.GeneratedAt).UTC().Format(time.RFC3339)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s by presenced", generated), "", 1, "L", false, 0, "")
}
