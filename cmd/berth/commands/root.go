package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	storePath  string
	logLevel   string
	logFormat  string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "berth",
		Short: "OpenBerth - Application Lifecycle Engine",
		Long: `OpenBerth manages the lifecycle of deployable applications.

An application pairs an instance-config (compose, cloud-init) with a
deployment provider (AWS EC2, Docker host, SSH host, WASM plug-in).
Register applications from manifests, start them to deploy an instance,
stop them to tear it down.

Features:
  - Schema-validated manifests (CUE, JSON, Starlark)
  - Pluggable providers behind a uniform deploy/info/destroy contract
  - Durable SQLite application store
  - OPA policy checks at registration
  - Manifest directory watching for auto-registration`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyLogging()
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&storePath, "store", envOr("BERTH_STORE", "berth.db"), "SQLite store path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("BERTH_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("BERTH_LOG_FORMAT", "console"), "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRegisterCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newRemoveCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// applyLogging re-applies level and format from the persistent flags,
// overriding whatever main set up from the environment.
func applyLogging() error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	switch logFormat {
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q (want console or json)", logFormat)
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
