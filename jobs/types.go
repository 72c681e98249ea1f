package jobs

import (
	"encoding/json"
	"time"

	"portwatch/scanner"
)

// StartRequest describes a scan to launch.
type StartRequest struct {
	Target  string
	Ports   string
	Workers int
	Timeout time.Duration
}

// RealTimeStats are counters derived from the results gathered so far.
type RealTimeStats struct {
	OpenPorts        int `json:"open_ports"`
	InsecureServices int `json:"vulnerabilities"`
}

// StatusSnapshot is the answer to an incremental status poll.
type StatusSnapshot struct {
	ID           string              `json:"scan_id"`
	State        State               `json:"status"`
	Progress     int                 `json:"progress"`
	Logs         []LogEntry          `json:"logs"`
	NextLogIndex int                 `json:"logs_index"`
	Duration     float64             `json:"duration"`
	Stats        RealTimeStats       `json:"real_time_stats"`
	Results      scanner.ResultTable `json:"results,omitempty"`
}

// MarshalJSON emits results, possibly an empty object, once the job is
// terminal and omits them while it is still running.
func (s StatusSnapshot) MarshalJSON() ([]byte, error) {
	type plain StatusSnapshot
	out := struct {
		plain
		Results *scanner.ResultTable `json:"results,omitempty"`
	}{plain: plain(s)}
	if s.State.Terminal() {
		results := s.Results
		if results == nil {
			results = scanner.ResultTable{}
		}
		out.Results = &results
	}
	return json.Marshal(out)
}

// Details is the full snapshot of a job, live or finished.
type Details struct {
	ID        string               `json:"scan_id"`
	Target    string               `json:"target"`
	Address   string               `json:"address,omitempty"`
	PortSpec  string               `json:"ports"`
	PortCount int                  `json:"port_count"`
	Workers   int                  `json:"workers"`
	Timeout   float64              `json:"timeout"`
	State     State                `json:"status"`
	Progress  int                  `json:"progress"`
	StartedAt time.Time            `json:"start_time"`
	EndedAt   *time.Time           `json:"end_time,omitempty"`
	Duration  float64              `json:"duration"`
	Stats     RealTimeStats        `json:"real_time_stats"`
	Logs      []LogEntry           `json:"logs"`
	Results   []scanner.PortResult `json:"results"`
}

// Finding flags an open service that speaks an unencrypted protocol.
type Finding struct {
	Port     int    `json:"port"`
	Service  string `json:"service"`
	Severity string `json:"severity"`
}

// Summary is the dashboard view of one job.
type Summary struct {
	ID        string    `json:"scan_id"`
	Target    string    `json:"target"`
	State     State     `json:"status"`
	Progress  int       `json:"progress"`
	StartedAt time.Time `json:"timestamp"`
	OpenPorts int       `json:"open_ports_count"`
	Services  []string  `json:"services"`
	Insecure  []Finding `json:"vulnerabilities"`
}

// Sealed is a detached copy of a finished job's results, safe to hand to
// the exporter.
type Sealed struct {
	JobID      string
	Target     string
	Address    string
	State      State
	StartedAt  time.Time
	EndedAt    time.Time
	TotalPorts int
	Results    scanner.ResultTable
}
