package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
)

var errNoHeaders = errors.New("dataset has no headers")

// CSVExporter writes the header line followed by one line per row. Titles are dropped.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset as CSV.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	table, err := data.matrix()
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	var out bytes.Buffer
	if err := csv.NewWriter(&out).WriteAll(table); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	return out.Bytes(), nil
}
