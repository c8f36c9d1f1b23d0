package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/linkpulse/cmd/linkpulse/commands"
	"github.com/teranos/linkpulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "linkpulse",
	Short: "linkpulse - LinkedIn automation scheduler and executor",
	Long: `linkpulse - scheduling and execution-state coordination for LinkedIn automations.

One long-lived executor (linkpulse serve) owns every job, schedule and quota
counter. Every other command is a thin client that sends commands to it.

Available commands:
  serve     - Run the executor (command channel, scheduler, jobs)
  schedule  - Manage time-triggered runs per automation kind
  job       - Start, stop and inspect runs; queue targets
  history   - Show, clear and export the history ledger
  quota     - Show daily counters and monthly credit balances
  am        - Manage configuration ("I am")
  version   - Show version information

Examples:
  linkpulse serve
  linkpulse schedule add peopleSearch 09:30 --options '{"keyword":"golang"}'
  linkpulse schedule enable peopleSearch
  linkpulse job progress peopleSearch
  linkpulse history export bulkEngagement -o engagement.csv`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetVerbosity(verbosity)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("server", "", "Executor URL (default http://localhost:<server.port>)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.QuotaCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		commands.PrintError(err)
		os.Exit(1)
	}
}
