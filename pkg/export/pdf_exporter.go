package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0
	maxCellText = 48
)

// PDFExporter renders a whole report, one page group per sheet.
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render writes the summary, sections and assignments tables in that order.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 12)

	for _, sheet := range []Sheet{SheetSummary, SheetSections, SheetAssignments} {
		rows, err := report.rows(sheet)
		if err != nil {
			return nil, err
		}
		recs, err := records(rows)
		if err != nil {
			return nil, fmt.Errorf("tabulate %s: %w", sheet, err)
		}
		pdf.AddPage()
		title := string(sheet)
		if report.Title != "" {
			title = report.Title + " - " + title
		}
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(4)
		table(pdf, recs)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func table(pdf *gofpdf.Fpdf, recs [][]string) {
	if len(recs) == 0 {
		return
	}
	header := recs[0]
	width := pageWidth / float64(len(header))

	drawHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		for _, h := range header {
			pdf.CellFormat(width, 8, h, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}

	drawHeader()
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, rec := range recs[1:] {
		if pdf.GetY()+7 > pageHeight-bottom {
			pdf.AddPage()
			drawHeader()
		}
		for _, cell := range rec {
			pdf.CellFormat(width, 7, clip(cell), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func clip(s string) string {
	if len(s) <= maxCellText {
		return s
	}
	return s[:maxCellText-3] + "..."
}
