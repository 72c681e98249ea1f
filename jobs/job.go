package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"portwatch/scanner"
)

// Job is one scan execution. The immutable request fields are set at
// creation; everything below mu is guarded by it.
type Job struct {
	id       string
	target   string
	portSpec string
	ports    []int
	workers  int
	timeout  time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	state     State
	address   string
	done      int
	progress  int
	startedAt time.Time
	endedAt   time.Time
	logs      []LogEntry
	results   scanner.ResultTable
	cancel    context.CancelFunc
}

// probeEvent carries one probe outcome from a worker to the job coordinator.
type probeEvent struct {
	port    int
	result  scanner.PortResult
	err     error
	elapsed time.Duration
}

func newJob(id, target, portSpec string, ports []int, workers int, timeout time.Duration, now func() time.Time) *Job {
	return &Job{
		id:        id,
		target:    target,
		portSpec:  portSpec,
		ports:     ports,
		workers:   workers,
		timeout:   timeout,
		now:       now,
		state:     StatePending,
		startedAt: now(),
		results:   make(scanner.ResultTable),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

func (j *Job) appendLocked(sev Severity, msg string) {
	j.logs = append(j.logs, LogEntry{Timestamp: j.now(), Message: msg, Severity: sev})
}

// log appends an entry unless the job is already terminal.
func (j *Job) log(sev Severity, msg string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	j.appendLocked(sev, msg)
	return true
}

func (j *Job) run(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending {
		return false
	}
	j.state = StateRunning
	j.cancel = cancel
	return true
}

func (j *Job) setAddress(addr string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.address = addr
	if addr != j.target {
		j.appendLocked(SeverityInfo, fmt.Sprintf("Resolved %s to %s", j.target, addr))
	}
}

// apply folds one probe outcome into the job. It returns false when the job
// is already terminal and the event was discarded.
func (j *Job) apply(ev probeEvent) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}

	j.done++
	if p := j.done * 100 / len(j.ports); p > j.progress {
		j.progress = p
	}

	switch {
	case ev.err != nil:
		j.appendLocked(SeverityWarning, fmt.Sprintf("Error scanning port %d: %v", ev.port, ev.err))
	case ev.result.Open():
		res := ev.result
		res.Port = ev.port
		j.results[ev.port] = res
		j.appendLocked(SeveritySuccess, fmt.Sprintf("Port %d is open: %s", ev.port, serviceLabel(res.Service)))
	}
	return true
}

// finish performs the single terminal transition. It returns false when the
// job had already ended.
func (j *Job) finish(state State, sev Severity, msg string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return false
	}
	if state == StateCompleted {
		j.progress = 100
	}
	j.state = state
	j.endedAt = j.now()
	if msg != "" {
		j.appendLocked(sev, msg)
	}
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

func (j *Job) stop() State {
	if j.finish(StateStopped, SeverityWarning, "Scan stopped by user.") {
		return StateStopped
	}
	return j.State()
}

func (j *Job) complete() bool {
	j.mu.RLock()
	open := len(j.results)
	j.mu.RUnlock()

	if open == 0 {
		return j.finish(StateCompleted, SeverityWarning, "Scan completed. No open ports found.")
	}
	return j.finish(StateCompleted, SeverityInfo, fmt.Sprintf("Scan completed. Found %d open ports.", open))
}

func (j *Job) durationLocked() float64 {
	if j.endedAt.IsZero() {
		return 0
	}
	return j.endedAt.Sub(j.startedAt).Seconds()
}

func (j *Job) statsLocked() RealTimeStats {
	stats := RealTimeStats{OpenPorts: len(j.results)}
	for _, res := range j.results {
		if insecureServices[strings.ToLower(res.Service)] {
			stats.InsecureServices++
		}
	}
	return stats
}

func (j *Job) status(since int) StatusSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if since < 0 {
		since = 0
	}
	logs := []LogEntry{}
	if since < len(j.logs) {
		logs = append(logs, j.logs[since:]...)
	}

	snap := StatusSnapshot{
		ID:           j.id,
		State:        j.state,
		Progress:     j.progress,
		Logs:         logs,
		NextLogIndex: len(j.logs),
		Duration:     j.durationLocked(),
		Stats:        j.statsLocked(),
	}
	if j.state.Terminal() {
		snap.Results = j.results.Clone()
	}
	return snap
}

func (j *Job) details() Details {
	j.mu.RLock()
	defer j.mu.RUnlock()

	d := Details{
		ID:        j.id,
		Target:    j.target,
		Address:   j.address,
		PortSpec:  j.portSpec,
		PortCount: len(j.ports),
		Workers:   j.workers,
		Timeout:   j.timeout.Seconds(),
		State:     j.state,
		Progress:  j.progress,
		StartedAt: j.startedAt,
		Duration:  j.durationLocked(),
		Stats:     j.statsLocked(),
		Logs:      append([]LogEntry(nil), j.logs...),
		Results:   j.results.Open(),
	}
	if !j.endedAt.IsZero() {
		end := j.endedAt
		d.EndedAt = &end
	}
	return d
}

func (j *Job) summary() Summary {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Summary{
		ID:        j.id,
		Target:    j.target,
		State:     j.state,
		Progress:  j.progress,
		StartedAt: j.startedAt,
		OpenPorts: len(j.results),
		Services:  []string{},
		Insecure:  []Finding{},
	}
	seen := make(map[string]bool)
	for _, res := range j.results.Open() {
		if res.Service != "" && !seen[res.Service] {
			seen[res.Service] = true
			s.Services = append(s.Services, res.Service)
		}
		if svc := strings.ToLower(res.Service); insecureServices[svc] {
			s.Insecure = append(s.Insecure, Finding{Port: res.Port, Service: svc, Severity: "high"})
		}
	}
	sort.Strings(s.Services)
	return s
}

func (j *Job) sealed() (Sealed, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.state.Terminal() {
		return Sealed{}, fmt.Errorf("%w: %s is %s", ErrJobNotTerminal, j.id, j.state)
	}
	return Sealed{
		JobID:      j.id,
		Target:     j.target,
		Address:    j.address,
		State:      j.state,
		StartedAt:  j.startedAt,
		EndedAt:    j.endedAt,
		TotalPorts: len(j.ports),
		Results:    j.results.Clone(),
	}, nil
}

func serviceLabel(service string) string {
	if service == "" {
		return "unknown"
	}
	return service
}
