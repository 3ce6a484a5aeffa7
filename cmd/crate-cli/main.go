package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crate/crate-go/client"
	"github.com/crate/crate-go/internal/logger"
	"github.com/crate/crate-go/internal/observability"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crate-cli",
	Short: "Command-line client for CrateDB clusters",
	Long: `crate-cli talks to a CrateDB cluster over HTTP. Statements are spread
over all configured servers; servers that fail are skipped until they
come back.

Servers are taken from --servers, the CRATE_SERVERS environment
variable, or a YAML profile, in that order of preference.

Examples:
  # Run a statement against two servers
  crate-cli --servers "node1:4200 node2:4200" sql "select name from sys.cluster"

  # Inspect the cluster
  crate-cli cluster health

  # Work with blobs
  crate-cli blob put myblobs ./image.png
  crate-cli blob get myblobs 0a4d55a8d778e5022fab701977c5d840bbc486d0 > image.png`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(blobCmd)
	rootCmd.AddCommand(clusterCmd)

	rootCmd.PersistentFlags().StringP("servers", "s", "", "Servers to connect to, space or comma separated")
	rootCmd.PersistentFlags().String("scheme", "", "Default scheme for servers given without one (http, https)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-request timeout (0 uses the configured default)")
	rootCmd.PersistentFlags().Duration("retry-interval", 0, "Rest time before probing a failed server again")
	rootCmd.PersistentFlags().Bool("error-trace", false, "Ask the server for stack traces on statement errors")
	rootCmd.PersistentFlags().String("profile", "", "YAML profile file with connection settings")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (console, json)")
}

// newClient builds a client from the environment, an optional profile and
// the command line, most specific last. The returned cleanup releases
// connections and flushes telemetry.
func newClient(cmd *cobra.Command) (*client.Client, func(), error) {
	cfg, err := client.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if path, _ := cmd.Flags().GetString("profile"); path != "" {
		if err := applyProfile(cfg, path); err != nil {
			return nil, nil, fmt.Errorf("apply profile: %w", err)
		}
	}

	if servers, _ := cmd.Flags().GetString("servers"); servers != "" {
		cfg.Servers = []string{servers}
	}
	if scheme, _ := cmd.Flags().GetString("scheme"); scheme != "" {
		cfg.Scheme = scheme
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.Timeout = timeout
	}
	if interval, _ := cmd.Flags().GetDuration("retry-interval"); interval > 0 {
		cfg.RetryInterval = interval
	}
	if trace, _ := cmd.Flags().GetBool("error-trace"); trace {
		cfg.ErrorTrace = true
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.LogFormat = format
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	shutdown := func(context.Context) error { return nil }
	if cfg.OTLPEndpoint != "" {
		shutdown, err = observability.Setup(cmd.Context(), observability.Config{
			ServiceName: "crate-cli",
			Environment: "cli",
			Endpoint:    cfg.OTLPEndpoint,
			Headers:     cfg.OTLPHeaders,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("set up telemetry: %w", err)
		}
	}

	c, err := client.New(cfg, client.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
	return c, cleanup, nil
}

// runContext is the lifetime of one command, ended by Ctrl-C.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
