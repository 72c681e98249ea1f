package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"portwatch/logging"
)

func loggerFor(job *Job) *slog.Logger {
	return logging.ForJob(job.id, job.target)
}

// dispatch drives one job from resolution to its terminal state. Workers
// hand their outcomes to a single coordinator goroutine that applies them to
// the job in completion order.
func (o *Orchestrator) dispatch(ctx context.Context, job *Job) {
	logger := loggerFor(job)
	defer func() {
		state := job.State()
		o.metrics.JobFinished(string(state))
		logger.Info("scan job finished", "state", state)
	}()

	addr, err := o.resolve(ctx, job.target)
	if err != nil {
		if ctx.Err() != nil {
			// Stopped during lookup; the job is already terminal.
			return
		}
		logger.Warn("target resolution failed", "error", err)
		job.finish(StateFailed, SeverityError, fmt.Sprintf("Failed to resolve %s: %v", job.target, err))
		return
	}
	job.setAddress(addr)

	events := make(chan probeEvent, job.workers)
	applied := make(chan struct{})
	go func() {
		defer close(applied)
		for ev := range events {
			o.metrics.ProbeObserved(outcome(ev), ev.elapsed)
			job.apply(ev)
		}
	}()

	err = o.probeAll(ctx, job, addr, events)
	close(events)
	<-applied

	switch {
	case err != nil:
		logger.Error("scan dispatch aborted", "error", err)
		job.finish(StateFailed, SeverityError, fmt.Sprintf("Error during scan: %v", err))
	case ctx.Err() != nil:
		// Stopped; the terminal transition has already happened.
	default:
		job.complete()
	}
}

func (o *Orchestrator) resolve(ctx context.Context, target string) (string, error) {
	if ip := net.ParseIP(target); ip != nil {
		return target, nil
	}
	addrs, err := o.resolver.LookupHost(ctx, target)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTargetResolution, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: no addresses for %s", ErrTargetResolution, target)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}

// probeAll feeds the job's ports to a bounded pool of workers. It returns
// early without error when ctx is cancelled.
func (o *Orchestrator) probeAll(ctx context.Context, job *Job, addr string, events chan<- probeEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	ports := make(chan int)

	g.Go(func() error {
		defer close(ports)
		for _, port := range job.ports {
			select {
			case ports <- port:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < job.workers; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", errWorkerPanic, r)
				}
			}()
			for port := range ports {
				start := time.Now()
				res, perr := o.prober.Probe(gctx, addr, port, job.timeout)
				ev := probeEvent{port: port, result: res, err: perr, elapsed: time.Since(start)}
				select {
				case events <- ev:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func outcome(ev probeEvent) string {
	switch {
	case ev.err != nil:
		return "error"
	case ev.result.Open():
		return "open"
	default:
		return "closed"
	}
}
