package jobs

import (
	"errors"
	"time"
)

// State is the lifecycle state of a scan job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Terminal reports whether no further transition may leave s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateStopped:
		return true
	default:
		return false
	}
}

// Severity classifies a job log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is one immutable line of a job's progress log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"level"`
}

var (
	// ErrEmptyTarget indicates a start request without a target host.
	ErrEmptyTarget = errors.New("target host is required")
	// ErrJobNotFound indicates the requested job id is unknown.
	ErrJobNotFound = errors.New("scan job not found")
	// ErrJobNotTerminal indicates the job is still pending or running.
	ErrJobNotTerminal = errors.New("scan job has not finished")
	// ErrTargetResolution indicates the target name could not be resolved.
	ErrTargetResolution = errors.New("target resolution failed")

	errWorkerPanic = errors.New("probe worker panicked")
)

// Services reported on the dashboard as running over unencrypted protocols.
var insecureServices = map[string]bool{
	"telnet": true,
	"ftp":    true,
}
