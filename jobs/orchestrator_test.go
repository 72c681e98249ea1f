package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portwatch/logging"
	"portwatch/scanner"
)

func TestMain(m *testing.M) {
	logging.Configure(logging.Options{Output: io.Discard})
	os.Exit(m.Run())
}

type fakeProber struct {
	open    map[int]string
	fail    map[int]error
	panicOn int
	// release, when set, blocks every probe until closed, ignoring ctx.
	release chan struct{}
	calls   atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context, target string, port int, timeout time.Duration) (scanner.PortResult, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	if port == p.panicOn {
		panic("boom")
	}
	if err := p.fail[port]; err != nil {
		return scanner.PortResult{}, err
	}
	if svc, ok := p.open[port]; ok {
		return scanner.PortResult{Port: port, Status: scanner.StatusOpen, Service: svc}, nil
	}
	return scanner.PortResult{Port: port, Status: scanner.StatusClosed}, nil
}

type staticResolver struct {
	addrs []string
	err   error
}

func (r staticResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	return r.addrs, r.err
}

// blockingResolver parks every lookup until its context is cancelled.
type blockingResolver struct {
	entered chan struct{}
}

func (r *blockingResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	close(r.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestOrchestrator(t *testing.T, p scanner.Prober, cfg Config) *Orchestrator {
	t.Helper()
	o := New(p, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) StatusSnapshot {
	t.Helper()
	var snap StatusSnapshot
	require.Eventually(t, func() bool {
		current, err := o.Status(id, 0)
		if err != nil {
			return false
		}
		snap = current
		return snap.State.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
	return snap
}

func messages(entries []LogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}

func TestStart_Validation(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{}, Config{})

	_, err := o.Start(context.Background(), StartRequest{Target: "   ", Ports: "80"})
	assert.ErrorIs(t, err, ErrEmptyTarget)

	_, err = o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "80-20"})
	assert.ErrorIs(t, err, scanner.ErrInvalidPortSpec)

	assert.Empty(t, o.List())
}

func TestStart_EndToEndWithConnectProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
			_ = conn.Close()
		}
	}()
	openPort := ln.Addr().(*net.TCPAddr).Port

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	require.NoError(t, closed.Close())

	prober, err := scanner.NewProber(scanner.ModeConnect, nil)
	require.NoError(t, err)
	o := newTestOrchestrator(t, prober, Config{MaxWorkers: 4})

	id, err := o.Start(context.Background(), StartRequest{
		Target:  "127.0.0.1",
		Ports:   fmt.Sprintf("%d,%d", openPort, closedPort),
		Workers: 2,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "_127.0.0.1"))

	snap := waitTerminal(t, o, id)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 100, snap.Progress)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, scanner.StatusOpen, snap.Results[openPort].Status)
	assert.Equal(t, "ssh", snap.Results[openPort].Service)
	assert.Greater(t, snap.Duration, 0.0)

	sealed, err := o.Results(id)
	require.NoError(t, err)
	assert.Equal(t, 2, sealed.TotalPorts)
	assert.Equal(t, "127.0.0.1", sealed.Target)
}

func TestStatus_IncrementalLogPolling(t *testing.T) {
	open := make(map[int]string)
	for p := 1; p <= 40; p++ {
		open[p] = "svc"
	}
	o := newTestOrchestrator(t, &fakeProber{open: open}, Config{MaxWorkers: 8})

	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "1-40", Workers: 8})
	require.NoError(t, err)

	var collected []LogEntry
	next, lastProgress := 0, 0
	for {
		snap, err := o.Status(id, next)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.Progress, lastProgress, "progress must not go backwards")
		lastProgress = snap.Progress
		assert.Equal(t, next+len(snap.Logs), snap.NextLogIndex)
		collected = append(collected, snap.Logs...)
		next = snap.NextLogIndex
		if snap.State.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}

	full, err := o.Status(id, 0)
	require.NoError(t, err)
	assert.Equal(t, messages(full.Logs), messages(collected))
	assert.Equal(t, 100, lastProgress)
	assert.Len(t, full.Results, 40)
	assert.Equal(t, "Scan completed. Found 40 open ports.", collected[len(collected)-1].Message)

	// Polling past the end yields nothing; a negative offset reads from the start.
	past, err := o.Status(id, full.NextLogIndex+5)
	require.NoError(t, err)
	assert.Empty(t, past.Logs)
	neg, err := o.Status(id, -3)
	require.NoError(t, err)
	assert.Len(t, neg.Logs, len(full.Logs))
}

func TestStart_ClampsWorkersWithWarning(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{}, Config{MaxWorkers: 2})

	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "1-3", Workers: 50})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	d, err := o.Details(id)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Workers)
	require.NotEmpty(t, d.Logs)
	assert.Equal(t, SeverityWarning, d.Logs[0].Severity)
	assert.Contains(t, d.Logs[0].Message, "exceeds recommended maximum of 2")

	id, err = o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "1", Workers: -4})
	require.NoError(t, err)
	waitTerminal(t, o, id)
	d, err = o.Details(id)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Workers)
	assert.Contains(t, d.Logs[0].Message, "below the minimum")
}

func TestStop_DiscardsLateResults(t *testing.T) {
	p := &fakeProber{open: map[int]string{1: "a", 2: "b", 3: "c"}, release: make(chan struct{})}
	o := newTestOrchestrator(t, p, Config{})

	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "1-3", Workers: 3})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, 5*time.Second, time.Millisecond)

	state, err := o.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)

	before, err := o.Status(id, 0)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, before.State)
	assert.Equal(t, "Scan stopped by user.", before.Logs[len(before.Logs)-1].Message)

	close(p.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	after, err := o.Status(id, 0)
	require.NoError(t, err)
	assert.Equal(t, before.Progress, after.Progress)
	assert.Equal(t, messages(before.Logs), messages(after.Logs))
	assert.Empty(t, after.Results)

	// Stopping again is a no-op.
	state, err = o.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)
}

func TestStop_CompletedJobKeepsState(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{}, Config{})
	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "7"})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	state, err := o.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, state)

	snap, err := o.Status(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "Scan completed. No open ports found.", snap.Logs[len(snap.Logs)-1].Message)
	assert.Equal(t, SeverityWarning, snap.Logs[len(snap.Logs)-1].Severity)
}

func TestDispatch_ResolutionFailureFailsJob(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{}, Config{
		Resolver: staticResolver{err: errors.New("no such host")},
	})

	id, err := o.Start(context.Background(), StartRequest{Target: "nowhere.invalid", Ports: "80"})
	require.NoError(t, err, "resolution failures surface through status, not start")

	snap := waitTerminal(t, o, id)
	assert.Equal(t, StateFailed, snap.State)
	last := snap.Logs[len(snap.Logs)-1]
	assert.Equal(t, SeverityError, last.Severity)
	assert.Contains(t, last.Message, "Failed to resolve nowhere.invalid")
}

func TestDispatch_ResolvedAddressIsLogged(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{open: map[int]string{80: "http"}}, Config{
		Resolver: staticResolver{addrs: []string{"::1", "192.0.2.7"}},
	})

	id, err := o.Start(context.Background(), StartRequest{Target: "example.test", Ports: "80"})
	require.NoError(t, err)
	snap := waitTerminal(t, o, id)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, "Resolved example.test to 192.0.2.7", snap.Logs[0].Message)

	d, err := o.Details(id)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", d.Address)
}

func TestDispatch_ProbeErrorCountsAsClosed(t *testing.T) {
	p := &fakeProber{
		open: map[int]string{22: "ssh"},
		fail: map[int]error{23: errors.New("connection reset")},
	}
	o := newTestOrchestrator(t, p, Config{})

	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "22,23", Workers: 1})
	require.NoError(t, err)
	snap := waitTerminal(t, o, id)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, 100, snap.Progress)
	require.Len(t, snap.Results, 1)
	assert.Contains(t, messages(snap.Logs), "Error scanning port 23: connection reset")
	assert.Contains(t, messages(snap.Logs), "Port 22 is open: ssh")
}

func TestDispatch_WorkerPanicFailsJob(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{panicOn: 5}, Config{})

	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "5"})
	require.NoError(t, err)
	snap := waitTerminal(t, o, id)

	assert.Equal(t, StateFailed, snap.State)
	assert.Contains(t, snap.Logs[len(snap.Logs)-1].Message, "Error during scan")
}

func TestUnknownJob(t *testing.T) {
	o := newTestOrchestrator(t, &fakeProber{}, Config{})

	_, err := o.Status("nope", 0)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = o.Stop("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = o.Details("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = o.Results("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestResults_RequiresTerminalJob(t *testing.T) {
	p := &fakeProber{release: make(chan struct{})}
	o := newTestOrchestrator(t, p, Config{})
	defer close(p.release)

	id, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "1"})
	require.NoError(t, err)

	_, err = o.Results(id)
	assert.ErrorIs(t, err, ErrJobNotTerminal)

	snap, err := o.Status(id, 0)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Nil(t, snap.Results)
	assert.Zero(t, snap.Duration)
}

func TestStart_UniqueIDsForSameSecond(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	o := newTestOrchestrator(t, &fakeProber{}, Config{
		Clock:    func() time.Time { return fixed },
		Resolver: staticResolver{addrs: []string{"127.0.0.1"}},
	})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := o.Start(context.Background(), StartRequest{Target: "host/with space", Ports: "1"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{
		"1700000000_host_with_space",
		"1700000000_host_with_space-1",
		"1700000000_host_with_space-2",
	}, ids)
}

func TestList_NewestFirst(t *testing.T) {
	var tick atomic.Int64
	tick.Store(1700000000)
	clock := func() time.Time { return time.Unix(tick.Add(1), 0) }
	o := newTestOrchestrator(t, &fakeProber{}, Config{Clock: clock})

	first, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.1", Ports: "1"})
	require.NoError(t, err)
	second, err := o.Start(context.Background(), StartRequest{Target: "127.0.0.2", Ports: "1"})
	require.NoError(t, err)

	list := o.List()
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
}

func TestDispatch_StopDuringResolution(t *testing.T) {
	var out lockedBuffer
	logging.Configure(logging.Options{Output: &out})
	t.Cleanup(func() { logging.Configure(logging.Options{Output: io.Discard}) })

	r := &blockingResolver{entered: make(chan struct{})}
	o := newTestOrchestrator(t, &fakeProber{}, Config{Resolver: r})

	id, err := o.Start(context.Background(), StartRequest{Target: "slow.test", Ports: "80"})
	require.NoError(t, err)
	select {
	case <-r.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("lookup never started")
	}

	state, err := o.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	snap, err := o.Status(id, 0)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, "Scan stopped by user.", snap.Logs[len(snap.Logs)-1].Message)

	logs := out.String()
	assert.Contains(t, logs, "scan job finished")
	assert.NotContains(t, logs, "target resolution failed")
}

func TestStatusSnapshot_ResultsOnlyWhenTerminal(t *testing.T) {
	running, err := json.Marshal(StatusSnapshot{ID: "a", State: StateRunning})
	require.NoError(t, err)
	assert.NotContains(t, string(running), `"results"`)

	done, err := json.Marshal(StatusSnapshot{ID: "a", State: StateCompleted})
	require.NoError(t, err)
	assert.Contains(t, string(done), `"results":{}`)

	withOpen, err := json.Marshal(StatusSnapshot{ID: "a", State: StateStopped, Results: scanner.ResultTable{
		22: {Port: 22, Status: scanner.StatusOpen, Service: "ssh"},
	}})
	require.NoError(t, err)
	var decoded StatusSnapshot
	require.NoError(t, json.Unmarshal(withOpen, &decoded))
	assert.Equal(t, "a", decoded.ID)
	assert.Equal(t, "ssh", decoded.Results[22].Service)
}
