package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset. The title is not written.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(neutralise(data.cells(row))); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// neutralise prefixes cells that spreadsheet applications would evaluate as
// formulas. Reporter supplied text such as locations and types reaches exports.
func neutralise(record []string) []string {
	for i, cell := range record {
		if cell == "" {
			continue
		}
		switch cell[0] {
		case '=', '+', '@', '\t', '\r':
			record[i] = "'" + cell
		case '-':
			if len(cell) == 1 || !strings.ContainsRune("0123456789.", rune(cell[1])) {
				record[i] = "'" + cell
			}
		}
	}
	return record
}
