package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skeinhq/skein/cmd/skein/commands"
	"github.com/skeinhq/skein/logger"
)

var rootCmd = &cobra.Command{
	Use:   "skein",
	Short: "skein - content ingestion lifecycle manager",
	Long: `skein schedules, triggers, and runs content-ingestion tasks.

Tasks bind a source plugin (web pages, git repositories) to an optional
destination plugin (filesystem, HTTP API) and fire on a cron expression,
an inbound webhook, or a manual trigger. Runs are recorded in SQLite and
lifecycle events stream to WebSocket clients.

Examples:
  skein serve                          # start the API and scheduler
  skein serve --config skein.yaml      # with an explicit config file
  skein version                        # show build information`,
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
