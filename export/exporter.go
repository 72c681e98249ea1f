// Package export writes finished scan results to CSV, spreadsheet, PDF and
// JSON files and records each export in a history sink.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"portwatch/scanner"
)

var (
	// ErrNoResults indicates the result table holds no open ports.
	ErrNoResults = errors.New("no open ports to export")
	// ErrInvalidFilename indicates a filename hint that cannot be used.
	ErrInvalidFilename = errors.New("invalid export filename")
	// ErrExportIO indicates the artifact could not be written.
	ErrExportIO = errors.New("export write failed")
)

// maxSummaryServices caps the services named in an artifact summary.
const maxSummaryServices = 5

// Request describes one export.
type Request struct {
	JobID      string
	Host       string
	Results    scanner.ResultTable
	TotalPorts int
	// ScanDate is when the scan finished; the export time is used when zero.
	ScanDate time.Time
	Format   Format
	// Filename is an optional hint; a name is generated when empty.
	Filename string
}

// Artifact describes a written export file. It is never modified after
// Export returns it.
type Artifact struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	Path        string    `json:"path"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	JobID       string    `json:"job_id"`
	TargetHost  string    `json:"target_host"`
	ScanDate    time.Time `json:"scan_date"`
	GeneratedAt time.Time `json:"generated_at"`
	OpenPorts   int       `json:"open_port_count"`
	TotalPorts  int       `json:"port_count"`
	Summary     string    `json:"summary"`
}

// Exporter renders result tables into files under one directory.
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter returns an exporter writing into dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Export writes the open ports of req.Results in req.Format. The input table
// is read, never modified.
func (e *Exporter) Export(req Request) (*Artifact, error) {
	render, ok := renderers[req.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}

	open := req.Results.Open()
	if len(open) == 0 {
		return nil, ErrNoResults
	}

	now := e.now()
	name := defaultFilename(req.Host, now, req.Format)
	if strings.TrimSpace(req.Filename) != "" {
		var err error
		if name, err = sanitizeFilename(req.Filename); err != nil {
			return nil, err
		}
	}

	if err := ensureWritableDir(e.dir); err != nil {
		return nil, err
	}

	total := req.TotalPorts
	if total < len(open) {
		total = len(open)
	}
	scanDate := req.ScanDate
	if scanDate.IsZero() {
		scanDate = now
	}
	doc := document{
		host:       req.Host,
		jobID:      req.JobID,
		scanDate:   scanDate,
		totalPorts: total,
		open:       open,
	}

	var buf bytes.Buffer
	if err := render(&buf, doc); err != nil {
		return nil, fmt.Errorf("%w: render %s: %w", ErrExportIO, req.Format, err)
	}

	path, err := writeExclusive(e.dir, name, buf.Bytes())
	if err != nil {
		return nil, err
	}

	return &Artifact{
		ID:          uuid.NewString(),
		Format:      req.Format,
		Path:        path,
		Filename:    filepath.Base(path),
		Size:        int64(buf.Len()),
		JobID:       req.JobID,
		TargetHost:  req.Host,
		ScanDate:    scanDate,
		GeneratedAt: now,
		OpenPorts:   len(open),
		TotalPorts:  total,
		Summary:     summarize(open, total),
	}, nil
}

// summarize builds "Found N open ports out of M scanned. Top services: ...".
func summarize(open []scanner.PortResult, total int) string {
	seen := make(map[string]bool)
	var services []string
	for _, res := range open {
		if res.Service != "" && !seen[res.Service] {
			seen[res.Service] = true
			services = append(services, res.Service)
		}
	}
	sort.Strings(services)
	if len(services) > maxSummaryServices {
		services = services[:maxSummaryServices]
	}

	summary := fmt.Sprintf("Found %d open ports out of %d scanned.", len(open), total)
	if len(services) > 0 {
		summary += " Top services: " + strings.Join(services, ", ")
	}
	return summary
}
