// irrigationd runs the irrigation controller: the scheduling engine, its
// valve driver, the MQTT bridge, the REST API and the housekeeping jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/irrigation-core/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "irrigationd",
		Short:         "Irrigation controller daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "path to the YAML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "irrigationd %s (commit %s, built %s)\n", version, commit, date)
		},
	}

	root.AddCommand(runCmd, versionCmd,
		newMigrateCmd(&configPath),
		newTokenCmd(&configPath),
		newHashPasswordCmd())
	return root
}

// getConfigPath returns IRRIGATION_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("IRRIGATION_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
