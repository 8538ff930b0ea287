package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/pulse/async"
)

// JobsCmd inspects async processing jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect async processing jobs",
	Long: `jobs: Inspect the Pulse async job queue

Examples:
  dataq jobs ls                    # Most recent jobs
  dataq jobs ls --status failed    # Failed jobs only
  dataq jobs ls --json             # Machine-readable output
  dataq jobs prune --older-than 168h`,
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List async jobs, newest first",
	RunE:  runJobsLs,
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished jobs older than --older-than",
	RunE:  runJobsPrune,
}

var (
	jobsStatusFlag    string
	jobsLimitFlag     int
	jobsJSONFlag      bool
	jobsOlderThanFlag time.Duration
)

func init() {
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 20, "Maximum number of jobs to show")
	jobsLsCmd.Flags().BoolVar(&jobsJSONFlag, "json", false, "Output as JSON")
	jobsLsCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")

	jobsPruneCmd.Flags().DurationVar(&jobsOlderThanFlag, "older-than", 30*24*time.Hour, "Minimum age of completed, failed and cancelled jobs to delete")
	jobsPruneCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")

	JobsCmd.AddCommand(jobsLsCmd, jobsPruneCmd)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	var status *async.JobStatus
	if jobsStatusFlag != "" {
		if !async.IsValidStatus(jobsStatusFlag) {
			return errors.Newf("unknown job status %q", jobsStatusFlag)
		}
		st := async.JobStatus(jobsStatusFlag)
		status = &st
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	jobs, err := async.NewQueue(database).ListJobs(status, jobsLimitFlag)
	if err != nil {
		return errors.Wrap(err, "failed to list jobs")
	}

	if jobsJSONFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	if len(jobs) == 0 {
		pterm.Info.Println("No jobs found")
		return nil
	}

	data := pterm.TableData{{"ID", "Dataset", "Status", "Progress", "Retries", "Created", "Error"}}
	for _, j := range jobs {
		data = append(data, []string{
			shortID(j.ID),
			shortID(j.Source),
			string(j.Status),
			fmt.Sprintf("%d/%d", j.Progress.Current, j.Progress.Total),
			fmt.Sprint(j.RetryCount),
			j.CreatedAt.Local().Format(time.DateTime),
			j.Error,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runJobsPrune(cmd *cobra.Command, args []string) error {
	if jobsOlderThanFlag <= 0 {
		return errors.Newf("--older-than must be positive, got %s", jobsOlderThanFlag)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := async.NewQueue(database).Cleanup(jobsOlderThanFlag)
	if err != nil {
		return errors.Wrap(err, "failed to prune jobs")
	}
	pterm.Success.Printfln("Deleted %d finished jobs older than %s", n, jobsOlderThanFlag)
	return nil
}

// shortID truncates an ID to 8 characters for display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
