package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat indicates an unknown export format name.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var formatAliases = map[string]Format{
	"csv":             FormatCSV,
	"xlsx":            FormatXLSX,
	"excel":           FormatXLSX,
	"spreadsheet":     FormatXLSX,
	"pdf":             FormatPDF,
	"json":            FormatJSON,
	"structured-text": FormatJSON,
}

// Formats lists the canonical formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatXLSX, FormatPDF, FormatJSON}
}

// ParseFormat maps a format name or alias to its canonical Format.
func ParseFormat(name string) (Format, error) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return f, nil
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type used when serving an artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
