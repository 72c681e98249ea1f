package api

import "portwatch/export"

// StartScanRequest is the payload for launching a scan.
type StartScanRequest struct {
	// Target is the hostname or IP address to probe.
	Target string `json:"target" binding:"required" example:"scanme.nmap.org" description:"Hostname or IPv4/IPv6 literal. Hostnames are resolved once when the scan starts."`
	// Ports is a comma-separated list of ports and inclusive ranges.
	Ports string `json:"ports" example:"22,80,443,8000-8100" description:"Port expression such as 22,80,443,1000-1100. Leave empty to scan the built-in list of common service ports."`
	// Workers caps the number of concurrent probes.
	Workers int `json:"workers" example:"20" description:"Concurrent probes for this scan. Values outside 1..max are clamped and a warning is added to the scan log."`
	// Timeout is the per-port timeout in seconds.
	Timeout float64 `json:"timeout" example:"1.5" description:"Per-port connect timeout in seconds. Non-positive values use the server default."`
}

// ScanAcceptedResponse acknowledges a started scan.
type ScanAcceptedResponse struct {
	ID     string `json:"scan_id" example:"1700000000_scanme.nmap.org" description:"Identifier used by every other scan endpoint."`
	Status string `json:"status" enums:"running" example:"running"`
}

// StopScanResponse reports the state of a scan after a stop request.
type StopScanResponse struct {
	ID     string `json:"scan_id" example:"1700000000_scanme.nmap.org"`
	Status string `json:"status" enums:"completed,failed,stopped" example:"stopped" description:"stopped when the request ended the scan, otherwise the terminal state it had already reached."`
}

// ExportScanRequest selects the artifact format and an optional filename.
type ExportScanRequest struct {
	Format   string `json:"format" binding:"required" enums:"csv,xlsx,excel,spreadsheet,pdf,json,structured-text" example:"csv"`
	Filename string `json:"filename" example:"weekly-report.csv" description:"Optional file name. Directory components are stripped and unsafe characters replaced. Existing files are never overwritten; a numeric suffix is appended instead."`
}

// ExportHistoryResponse lists recorded exports, newest first.
type ExportHistoryResponse struct {
	Exports []export.HistoryRecord `json:"exports"`
}

// LocalIPResponse carries the address this host uses for outbound traffic.
type LocalIPResponse struct {
	IP string `json:"ip" example:"192.168.1.20"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ErrorResponse provides a consistent structure for API error payloads.
type ErrorResponse struct {
	// Error is a human-readable explanation of why the request failed.
	Error string `json:"error" example:"scan job not found"`
}
