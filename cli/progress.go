package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"portwatch/jobs"
)

const progressBarWidth = 30

// progress renders scan progress. On a terminal it redraws a single status
// line; otherwise it prints each log entry once.
type progress struct {
	out        io.Writer
	target     string
	isTerminal bool
	drawn      bool
}

func newProgress(out io.Writer, target string) *progress {
	p := &progress{out: out, target: target}
	if f, ok := out.(*os.File); ok {
		p.isTerminal = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *progress) update(snap jobs.StatusSnapshot) {
	if !p.isTerminal {
		for _, entry := range snap.Logs {
			fmt.Fprintf(p.out, "%s [%s] %s\n", entry.Timestamp.Format("15:04:05"), entry.Severity, entry.Message)
		}
		return
	}

	// Warnings and errors stay visible above the status line.
	for _, entry := range snap.Logs {
		if entry.Severity == jobs.SeverityWarning || entry.Severity == jobs.SeverityError {
			fmt.Fprintf(p.out, "\033[2K\r%s\n", entry.Message)
		}
	}
	filled := snap.Progress * progressBarWidth / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)
	fmt.Fprintf(p.out, "\033[2K\r[%s] %3d%% %s  open: %d", bar, snap.Progress, p.target, snap.Stats.OpenPorts)
	p.drawn = true
}

func (p *progress) done() {
	if p.isTerminal && p.drawn {
		fmt.Fprintln(p.out)
	}
}
