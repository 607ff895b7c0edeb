// Command childlimit evaluates two-child-limit reforms over a microsimulation
// engine and writes per-scenario, distributional and combined CSV tables.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-childlimit/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "childlimit",
		Short: "Cost and poverty impact of two-child-limit reforms",
		Long: `childlimit runs a batch of child limit reforms through a microsimulation
engine, aggregates weighted results per year, policy and parameter, and
writes them as CSV tables.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newCombineCmd(),
		newGenerateDatasetCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// newLogger builds the command logger on stderr. The --log-level flag
// wins over the configured level.
func newLogger(cmd *cobra.Command, configured string) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = configured
	}
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		return logging.NewJSONLogger(level, cmd.ErrOrStderr())
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "childlimit version %s\n", version)
		},
	}
}
