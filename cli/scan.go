package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"portwatch/config"
	"portwatch/export"
	"portwatch/jobs"
	"portwatch/scanner"
)

const pollInterval = 100 * time.Millisecond

type scanOptions struct {
	ports    string
	workers  int
	timeout  time.Duration
	format   string
	filename string
	jsonOut  bool
}

func newScanCommand(global *globalOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Scan one host and print the open ports",
		Long: `Scan a single host from the terminal. Progress is drawn on stderr when it is
a terminal, otherwise the scan log is printed line by line. Interrupting the
scan stops it and prints what was found so far.`,
		Example: `  portwatch scan scanme.nmap.org
  portwatch scan 192.168.1.10 --ports 1-1024 --workers 32
  portwatch scan example.com --ports 80,443 --export pdf --export-dir ./reports
  portwatch scan 10.0.0.5 --mode udp --ports 53,123,161 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("log-level") {
				_ = cmd.Flags().Set("log-level", "warn")
			}
			cfg, err := global.loadConfig(cmd, cmd.ErrOrStderr(), map[string]string{
				"export.dir":          "export-dir",
				"scanner.mode":        "mode",
				"scanner.probes_file": "probes",
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScan(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ports, "ports", "p", "", "ports to scan, e.g. 22,80,8000-8100 (default: common service ports)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "concurrent probes (default from config)")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "per-port timeout (default from config)")
	cmd.Flags().String("mode", "connect", "probe mode: connect or udp")
	cmd.Flags().String("probes", "", "nmap-service-probes file for service fingerprinting")
	cmd.Flags().StringVar(&opts.format, "export", "", "export open ports as csv, xlsx, pdf or json")
	cmd.Flags().String("export-dir", "exports", "directory for exported files")
	cmd.Flags().StringVar(&opts.filename, "filename", "", "export file name (generated when empty)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print the scan details as JSON")
	return cmd
}

func runScan(ctx context.Context, out, errOut io.Writer, cfg *config.Config, target string, opts *scanOptions) error {
	var format export.Format
	if opts.format != "" {
		f, err := export.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		format = f
	}

	prober, err := scanner.Setup(cfg.Scanner.Mode, cfg.Scanner.ProbesFile)
	if err != nil {
		return err
	}
	orchestrator := jobs.New(prober, jobs.Config{
		DefaultWorkers: cfg.Scanner.DefaultWorkers,
		MaxWorkers:     cfg.Scanner.MaxWorkers,
		DefaultTimeout: cfg.Scanner.Timeout,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = orchestrator.Shutdown(shutdownCtx)
	}()

	id, err := orchestrator.Start(ctx, jobs.StartRequest{
		Target:  target,
		Ports:   opts.ports,
		Workers: opts.workers,
		Timeout: opts.timeout,
	})
	if err != nil {
		return err
	}

	if err := follow(ctx, orchestrator, id, newProgress(errOut, target)); err != nil {
		return err
	}

	details, err := orchestrator.Details(id)
	if err != nil {
		return err
	}
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(details); err != nil {
			return err
		}
	} else {
		printResults(out, details)
	}

	if format != "" {
		if err := exportResults(ctx, errOut, orchestrator, id, cfg.Export.Dir, format, opts.filename); err != nil {
			return err
		}
	}

	if details.State == jobs.StateFailed {
		return fmt.Errorf("scan of %s failed", target)
	}
	return nil
}

// follow polls the job until it is terminal, stopping it when ctx ends.
func follow(ctx context.Context, o *jobs.Orchestrator, id string, p *progress) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	next := 0
	cancelled := ctx.Done()
	for {
		snap, err := o.Status(id, next)
		if err != nil {
			return err
		}
		next = snap.NextLogIndex
		p.update(snap)
		if snap.State.Terminal() {
			p.done()
			return nil
		}

		select {
		case <-cancelled:
			cancelled = nil
			_, _ = o.Stop(id)
		case <-ticker.C:
		}
	}
}

func exportResults(ctx context.Context, errOut io.Writer, o *jobs.Orchestrator, id, dir string, format export.Format, filename string) error {
	sealed, err := o.Results(id)
	if err != nil {
		return err
	}

	service := export.NewService(export.NewExporter(dir), nil, nil)
	artifact, err := service.Export(ctx, export.Request{
		JobID:      sealed.JobID,
		Host:       sealed.Target,
		Results:    sealed.Results,
		TotalPorts: sealed.TotalPorts,
		ScanDate:   sealed.EndedAt,
		Format:     format,
		Filename:   filename,
	}, "")
	if errors.Is(err, export.ErrNoResults) {
		fmt.Fprintln(errOut, "Nothing to export: no open ports found.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(errOut, "Exported %d open ports to %s (%d bytes)\n", artifact.OpenPorts, artifact.Path, artifact.Size)
	return nil
}

func printResults(out io.Writer, d jobs.Details) {
	target := d.Target
	if d.Address != "" && d.Address != d.Target {
		target = fmt.Sprintf("%s (%s)", d.Target, d.Address)
	}
	fmt.Fprintf(out, "Scan of %s %s after %.2fs: %d of %d ports open\n",
		target, d.State, d.Duration, len(d.Results), d.PortCount)

	if len(d.Results) == 0 {
		fmt.Fprintln(out, "No open ports found.")
		return
	}

	table := tablewriter.NewWriter(out)
	table.Header("Port", "Status", "Service", "Version", "Server", "TLS")
	for _, r := range d.Results {
		tlsVersion := ""
		if r.TLS != nil {
			tlsVersion = r.TLS.Version
		}
		_ = table.Append([]string{
			strconv.Itoa(r.Port),
			string(r.Status),
			r.Service,
			r.Version,
			r.Server,
			tlsVersion,
		})
	}
	_ = table.Render()
}
