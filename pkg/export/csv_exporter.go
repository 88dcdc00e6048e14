package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/gocarina/gocsv"
)

// CSVExporter renders one report sheet as CSV.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render marshals the rows of sheet, header included.
func (e *CSVExporter) Render(report Report, sheet Sheet) ([]byte, error) {
	rows, err := report.rows(sheet)
	if err != nil {
		return nil, err
	}
	out, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal %s csv: %w", sheet, err)
	}
	return out, nil
}

// records turns a typed row slice into header plus string cells, so the PDF
// table shares column names with the CSV files.
func records(rows interface{}) ([][]string, error) {
	raw, err := gocsv.MarshalBytes(rows)
	if err != nil {
		return nil, err
	}
	recs, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rendered csv: %w", err)
	}
	return recs, nil
}
