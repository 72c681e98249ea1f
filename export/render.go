package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
)

type renderFunc func(w io.Writer, doc document) error

var renderers = map[Format]renderFunc{
	FormatCSV:  renderCSV,
	FormatXLSX: renderXLSX,
	FormatPDF:  renderPDF,
	FormatJSON: renderJSON,
}

func renderCSV(w io.Writer, doc document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(doc.rows()); err != nil {
		return err
	}
	return cw.Error()
}

const sheetName = "Scan Results"

func renderXLSX(w io.Writer, doc document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	widths := make([]int, len(header))
	setRow := func(row int, values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		for i, v := range values {
			if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[i] {
				widths[i] = n
			}
		}
		return f.SetSheetRow(sheetName, cell, &values)
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := setRow(1, headerRow); err != nil {
		return err
	}

	for i, row := range doc.rows() {
		values := make([]any, len(row))
		for k, v := range row {
			values[k] = v
		}
		// Keep the port numeric so the sheet sorts and filters correctly.
		if port, err := strconv.Atoi(row[colPort]); err == nil {
			values[colPort] = port
		}
		if err := setRow(i+2, values); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return err
	}

	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, float64(min(width+2, 50))); err != nil {
			return err
		}
	}

	return f.Write(w)
}

var pdfColumns = []int{colHost, colPort, colStatus, colService, colVersion, colServer}

const (
	pdfMaxCell   = 40
	pdfRowHeight = 10.0
)

func renderPDF(w io.Writer, doc document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, pdfTitle(doc.host), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 10, "Scan Date: "+doc.scanDate.Format(scanDateLayout), "", 1, "", false, 0, "")
	pdf.Ln(10)

	colWidth := min(190/float64(len(pdfColumns)), 36)

	pdf.SetFont("Arial", "B", 12)
	for _, idx := range pdfColumns {
		pdf.CellFormat(colWidth, pdfRowHeight, header[idx], "1", 0, "", false, 0, "")
	}
	pdf.Ln(pdfRowHeight)

	pdf.SetFont("Arial", "", 8)
	for _, row := range doc.rows() {
		for _, idx := range pdfColumns {
			pdf.CellFormat(colWidth, pdfRowHeight, pdfText(row[idx]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(pdfRowHeight)
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

var pdfLineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// pdfASCII flattens s to printable ASCII, replacing anything else with '?'.
func pdfASCII(s string) string {
	s = pdfLineBreaks.Replace(s)
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func pdfTitle(host string) string {
	return pdfASCII("Port Scan Results for " + host)
}

// pdfText is pdfASCII truncated to the cell width.
func pdfText(s string) string {
	out := pdfASCII(s)
	if len(out) > pdfMaxCell {
		out = out[:pdfMaxCell-3] + "..."
	}
	return out
}

type jsonScanInfo struct {
	Host              string `json:"host"`
	JobID             string `json:"job_id,omitempty"`
	ScanDate          string `json:"scan_date"`
	TotalOpenPorts    int    `json:"total_open_ports"`
	TotalPortsScanned int    `json:"total_ports_scanned"`
}

type jsonPort struct {
	Port    int    `json:"port"`
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Server  string `json:"server"`
	Banner  string `json:"banner"`
	SSLCert string `json:"ssl_cert,omitempty"`
}

type jsonDocument struct {
	ScanInfo  jsonScanInfo        `json:"scan_info"`
	OpenPorts map[string]jsonPort `json:"open_ports"`
}

func renderJSON(w io.Writer, doc document) error {
	out := jsonDocument{
		ScanInfo: jsonScanInfo{
			Host:              doc.host,
			JobID:             doc.jobID,
			ScanDate:          doc.scanDate.Format(scanDateLayout),
			TotalOpenPorts:    len(doc.open),
			TotalPortsScanned: doc.totalPorts,
		},
		OpenPorts: make(map[string]jsonPort, len(doc.open)),
	}
	for _, res := range doc.open {
		out.OpenPorts[strconv.Itoa(res.Port)] = jsonPort{
			Port:    res.Port,
			Status:  string(res.Status),
			Service: res.Service,
			Version: res.Version,
			Server:  res.Server,
			Banner:  normalizeBanner(res.Banner),
			SSLCert: res.TLS.String(),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
