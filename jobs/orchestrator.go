// Package jobs runs port scan jobs in the background and exposes their
// progress, logs and results to concurrent callers.
package jobs

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"portwatch/metrics"
	"portwatch/scanner"
)

// HostResolver resolves a target name to addresses. *net.Resolver satisfies it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config tunes an Orchestrator. Zero values select the defaults.
type Config struct {
	// DefaultWorkers is used when a request does not name a worker count.
	DefaultWorkers int
	// MaxWorkers caps the per-job pool; defaults to twice the CPU count.
	MaxWorkers int
	// DefaultTimeout is the per-probe timeout for requests without one.
	DefaultTimeout time.Duration

	Resolver HostResolver
	Metrics  *metrics.Metrics
	Clock    func() time.Time
}

// Orchestrator owns the job table. The table lock only guards lookup and
// insertion; each job carries its own lock.
type Orchestrator struct {
	prober         scanner.Prober
	resolver       HostResolver
	metrics        *metrics.Metrics
	now            func() time.Time
	defaultWorkers int
	maxWorkers     int
	defaultTimeout time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job

	wg sync.WaitGroup
}

// MaxWorkers returns the default upper bound for a job's worker pool.
func MaxWorkers() int {
	return 2 * runtime.NumCPU()
}

// New creates an orchestrator that probes through prober.
func New(prober scanner.Prober, cfg Config) *Orchestrator {
	o := &Orchestrator{
		prober:         prober,
		resolver:       cfg.Resolver,
		metrics:        cfg.Metrics,
		now:            cfg.Clock,
		defaultWorkers: cfg.DefaultWorkers,
		maxWorkers:     cfg.MaxWorkers,
		defaultTimeout: cfg.DefaultTimeout,
		jobs:           make(map[string]*Job),
	}
	if o.resolver == nil {
		o.resolver = net.DefaultResolver
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.maxWorkers <= 0 {
		o.maxWorkers = MaxWorkers()
	}
	if o.defaultWorkers <= 0 {
		o.defaultWorkers = 10
	}
	if o.defaultTimeout <= 0 {
		o.defaultTimeout = scanner.DefaultTimeout
	}
	return o
}

// Start validates the request, registers a job and begins probing in the
// background. It returns as soon as the job is running.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (string, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return "", ErrEmptyTarget
	}
	ports, err := scanner.ResolvePorts(req.Ports)
	if err != nil {
		return "", err
	}

	requested := req.Workers
	workers, clampMsg := o.clampWorkers(requested)
	if requested == 0 {
		workers, clampMsg = min(o.defaultWorkers, o.maxWorkers), ""
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.defaultTimeout
	}

	o.mu.Lock()
	id := o.uniqueIDLocked(target)
	job := newJob(id, target, strings.TrimSpace(req.Ports), ports, workers, timeout, o.now)
	o.jobs[id] = job
	o.mu.Unlock()

	logger := loggerFor(job)
	if clampMsg != "" {
		job.log(SeverityWarning, clampMsg)
		logger.Warn("worker count clamped", "requested", requested, "workers", workers)
	}

	// The job outlives the request that started it.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if !job.run(cancel) {
		cancel()
		return id, nil
	}

	o.metrics.JobStarted()
	logger.Info("scan job started", "ports", len(ports), "workers", workers, "timeout", timeout)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.dispatch(jobCtx, job)
	}()
	return id, nil
}

func (o *Orchestrator) clampWorkers(n int) (int, string) {
	switch {
	case n < 1:
		return 1, fmt.Sprintf("Worker count %d is below the minimum of 1. Using 1 worker.", n)
	case n > o.maxWorkers:
		return o.maxWorkers, fmt.Sprintf("Worker count %d exceeds recommended maximum of %d. Using %d workers for optimal performance.", n, o.maxWorkers, o.maxWorkers)
	default:
		return n, ""
	}
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func (o *Orchestrator) uniqueIDLocked(target string) string {
	base := fmt.Sprintf("%d_%s", o.now().Unix(), unsafeIDChars.ReplaceAllString(target, "_"))
	id := base
	for n := 1; ; n++ {
		if _, exists := o.jobs[id]; !exists {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

func (o *Orchestrator) lookup(id string) (*Job, error) {
	o.mu.RLock()
	job, ok := o.jobs[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// Status returns the job state together with the log entries appended since
// the given index.
func (o *Orchestrator) Status(id string, since int) (StatusSnapshot, error) {
	job, err := o.lookup(id)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return job.status(since), nil
}

// Stop ends a running job immediately. Stopping a finished job is a no-op
// that reports its existing state.
func (o *Orchestrator) Stop(id string) (State, error) {
	job, err := o.lookup(id)
	if err != nil {
		return "", err
	}
	state := job.stop()
	loggerFor(job).Info("scan job stop requested", "state", state)
	return state, nil
}

// Details returns the full snapshot of a job, partial while it runs.
func (o *Orchestrator) Details(id string) (Details, error) {
	job, err := o.lookup(id)
	if err != nil {
		return Details{}, err
	}
	return job.details(), nil
}

// Results returns a sealed copy of a finished job's results.
func (o *Orchestrator) Results(id string) (Sealed, error) {
	job, err := o.lookup(id)
	if err != nil {
		return Sealed{}, err
	}
	return job.sealed()
}

// List returns a summary of every job, newest first.
func (o *Orchestrator) List() []Summary {
	o.mu.RLock()
	all := make([]*Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		all = append(all, job)
	}
	o.mu.RUnlock()

	out := make([]Summary, 0, len(all))
	for _, job := range all {
		out = append(out, job.summary())
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].StartedAt.After(out[k].StartedAt)
		}
		return out[i].ID > out[k].ID
	})
	return out
}

// Shutdown stops every unfinished job and waits for their dispatch loops to
// return or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.RLock()
	all := make([]*Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		all = append(all, job)
	}
	o.mu.RUnlock()

	for _, job := range all {
		job.stop()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
