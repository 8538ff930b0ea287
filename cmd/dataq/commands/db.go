package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dataq/ai/tracker"
	"github.com/teranos/dataq/db"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/pipeline"
	"github.com/teranos/dataq/pulse/async"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the dataq database",
	Long: `db: Manage dataq database operations

Examples:
  dataq db migrate                # Apply pending schema migrations
  dataq db stats                  # Dataset, job and LLM usage counts
  dataq db stats --since 168h     # LLM usage over the last week`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display dataset counts by status, async job counts and LLM usage",
	RunE:  runDbStats,
}

var (
	dbPathFlag     string
	statsSinceFlag time.Duration
)

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	dbStatsCmd.Flags().DurationVar(&statsSinceFlag, "since", 24*time.Hour, "LLM usage window")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return errors.AssertionFailedf("no migrations recorded after migrate")
	}
	pterm.Success.Printfln("Database is at schema version %s (%d migrations applied)", versions[len(versions)-1], len(versions))
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	datasets, err := pipeline.NewStore(database).CountByStatus(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to count datasets")
	}
	jobs, err := async.NewQueue(database).GetStats()
	if err != nil {
		return errors.Wrap(err, "failed to count jobs")
	}
	usage, err := tracker.NewUsageTracker(database, nil).GetUsageStats(ctx, time.Now().Add(-statsSinceFlag))
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Database Statistics")
	pterm.Info.Printfln("Database Path: %s", pathOr(dbPathFlag, cfg.Database.Path))

	statuses := []pipeline.Status{pipeline.StatusUploaded, pipeline.StatusProcessing, pipeline.StatusReady, pipeline.StatusFailed}
	data := pterm.TableData{{"Datasets", "Count"}}
	for _, st := range statuses {
		data = append(data, []string{string(st), fmt.Sprint(datasets[st])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Println()
	data = pterm.TableData{
		{"Jobs", "Count"},
		{"queued", fmt.Sprint(jobs.Queued)},
		{"running", fmt.Sprint(jobs.Running)},
		{"completed", fmt.Sprint(jobs.Completed)},
		{"failed", fmt.Sprint(jobs.Failed)},
		{"cancelled", fmt.Sprint(jobs.Cancelled)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.Println()
	pterm.Info.Printfln("LLM usage (last %s): %d requests, %.0f%% successful, %d models, %d prompt bytes",
		statsSinceFlag, usage.TotalRequests, usage.SuccessRate*100, usage.UniqueModels, usage.PromptBytes)
	return nil
}

func pathOr(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}
