// Package cli implements the portwatch command tree: serve runs the HTTP
// API, scan runs a single scan from the terminal.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"portwatch/config"
	"portwatch/logging"
)

// Build information, set through ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion records build information for the version command.
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

type globalOptions struct {
	cfgFile string
}

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "portwatch",
		Short: "Port scanner with a job API and result exports",
		Long: `portwatch probes TCP (or UDP) ports on a target host, fingerprints the
services it finds and exports the results as CSV, spreadsheet, PDF or JSON.

Run "portwatch serve" to expose scan jobs over HTTP, or "portwatch scan" for a
one-off scan in the terminal.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./portwatch.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "json", "log format: json or text")

	root.AddCommand(
		newServeCommand(opts),
		newScanCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration with the named flags of cmd layered on top
// and configures logging to write to logOut.
func (o *globalOptions) loadConfig(cmd *cobra.Command, logOut io.Writer, bindings map[string]string) (*config.Config, error) {
	bindings["logging.level"] = "log-level"
	bindings["logging.format"] = "log-format"

	flags := make(map[string]*pflag.Flag, len(bindings))
	for key, name := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}

	cfg, err := config.Load(o.cfgFile, flags)
	if err != nil {
		return nil, err
	}

	logging.Configure(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOut,
	})
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "portwatch %s\n", versionString())
		},
	}
}
