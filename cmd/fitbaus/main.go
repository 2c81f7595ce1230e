package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitbaus/fitbaus/cmd/fitbaus/commands"
	"github.com/fitbaus/fitbaus/logger"
)

var rootCmd = &cobra.Command{
	Use:   "fitbaus",
	Short: "fitbaus - personal health metrics fetch server",
	Long: `fitbaus - background fetcher and dashboard server for personal health metrics.

fitbaus drives the Python fetcher scripts as supervised background jobs,
tracks their progress, and serves the dashboard that starts, watches and
cancels them.

Available commands:
  server  - Start the fetch orchestration server
  config  - Show the resolved configuration
  version - Show version information

Examples:
  fitbaus server                 # Start the server on the configured port
  fitbaus server --port 9001     # Start on a specific port
  fitbaus config show            # Show current configuration
  fitbaus version                # Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize global logger before any command runs
		// Skip for commands that print structured output (like 'config show')
		if cmd.Name() != "show" {
			jsonOutput, _ := cmd.Flags().GetBool("json-logs")
			if err := logger.Initialize(jsonOutput); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
