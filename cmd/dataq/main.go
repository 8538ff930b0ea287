package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/dataq/cmd/dataq/commands"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dataq",
	Short: "dataq - Dataset quality pipeline",
	Long: `dataq - Profile, score, explain and clean tabular datasets.

Available commands:
  server - Start the HTTP API, async workers and event stream
  check  - Profile and score a local CSV file without the database
  db     - Manage the dataq database
  jobs   - Inspect async processing jobs
  am     - Manage dataq configuration ("I am")

Examples:
  dataq server                         # Serve the API on the configured port
  dataq check people.csv               # Report on a local file
  dataq check people.csv --explain     # Also ask the LLM for a summary and plan
  dataq jobs ls --status failed        # List failed processing jobs
  dataq am show --format json          # Show the merged configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLog, _ := cmd.Flags().GetBool("json-log")
		if err := logger.Initialize(jsonLog, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-log", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}
