package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"portwatch/api"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the scan job API, export endpoints, live websocket stream, Prometheus
metrics and Swagger UI. Export history and rate limiting need Redis.`,
		Example: `  portwatch serve
  portwatch serve --addr :9090 --redis --redis-addr localhost:6379
  PORTWATCH_EXPORT_DIR=/var/lib/portwatch portwatch serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd, cmd.ErrOrStderr(), map[string]string{
				"server.addr":         "addr",
				"redis.enabled":       "redis",
				"redis.addr":          "redis-addr",
				"export.dir":          "export-dir",
				"scanner.mode":        "mode",
				"scanner.probes_file": "probes",
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.Run(ctx, cfg)
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Bool("redis", false, "store export history in redis")
	cmd.Flags().String("redis-addr", "localhost:6379", "redis address")
	cmd.Flags().String("export-dir", "exports", "directory for exported files")
	cmd.Flags().String("mode", "connect", "probe mode: connect or udp")
	cmd.Flags().String("probes", "", "nmap-service-probes file for service fingerprinting")
	return cmd
}
