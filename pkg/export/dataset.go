package export

import "fmt"

// Format identifies an export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Dataset defines tabular export content. Rows are keyed by header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// matrix lays the dataset out as the header line followed by its rows in header order.
// Cells missing from a row are empty.
func (d Dataset) matrix() ([][]string, error) {
	if len(d.Headers) == 0 {
		return nil, errNoHeaders
	}
	table := make([][]string, 0, len(d.Rows)+1)
	table = append(table, d.Headers)
	for _, row := range d.Rows {
		line := make([]string, len(d.Headers))
		for i, header := range d.Headers {
			line[i] = row[header]
		}
		table = append(table, line)
	}
	return table, nil
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ParseFormat accepts csv or pdf, defaulting to csv when empty.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Render encodes the dataset in the requested format.
func Render(format Format, data Dataset) ([]byte, error) {
	switch format {
	case FormatPDF:
		return NewPDFExporter().Render(data)
	case FormatCSV:
		return NewCSVExporter().Render(data)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
