package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gavelbot/gavel/queue"
)

// JobsCmd groups job queue inspection and maintenance.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage queued jobs",
	Long: `Inspect and manage the durable job queue.

Examples:
  gaveld jobs ls                   # List queued jobs
  gaveld jobs ls --status failed   # List permanently failed jobs
  gaveld jobs ls --space juicebox  # List jobs for one space
  gaveld jobs log <id>             # Show a job's execution history
  gaveld jobs requeue <id>         # Put a failed or stalled job back in the queue
  gaveld jobs cleanup --days 30    # Delete old completed and failed jobs`,
}

var (
	jobsStatusFlag string
	jobsSpaceFlag  string
	jobsLimitFlag  int
	cleanupDays    int
	requeueDelay   time.Duration
)

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		store := queue.NewStore(database)

		var jobs []*queue.Job
		if jobsSpaceFlag != "" {
			jobs, err = store.ListBySpace(ctx, jobsSpaceFlag, jobsLimitFlag)
		} else {
			if !queue.IsValidStatus(jobsStatusFlag) {
				return fmt.Errorf("unknown status %q", jobsStatusFlag)
			}
			jobs, err = store.ListByStatus(ctx, queue.JobStatus(jobsStatusFlag), jobsLimitFlag)
		}
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}

		fmt.Printf("%-60s %-10s %-20s %s\n", "ID", "STATUS", "RUN AT", "RETRIES")
		for _, j := range jobs {
			retries := fmt.Sprintf("%d/%d", j.RetryCount, j.MaxRetries)
			fmt.Printf("%-60s %-10s %-20s %s\n",
				j.ID, j.Status, j.RunAt.UTC().Format("2006-01-02 15:04:05"), retries)
			if j.Error != "" {
				fmt.Printf("    error: %s\n", j.Error)
			}
		}
		return nil
	},
}

var jobsLogCmd = &cobra.Command{
	Use:   "log <id>",
	Short: "Show a job's execution history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		store := queue.NewStore(database)

		job, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		executions, err := store.ListExecutions(ctx, job.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Job: %s\n", job.ID)
		fmt.Printf("Status: %s (retries %d/%d)\n", job.Status, job.RetryCount, job.MaxRetries)
		if job.Error != "" {
			fmt.Printf("Last error: %s\n", job.Error)
		}
		fmt.Printf("\n%d execution(s):\n", len(executions))
		for _, e := range executions {
			outcome := "ok"
			if e.Error != "" {
				outcome = e.Error
			}
			fmt.Printf("  %s  attempt %d  %s\n",
				e.StartedAt.UTC().Format("2006-01-02 15:04:05"), e.Attempt, outcome)
		}
		return nil
	},
}

var jobsRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Put a failed or stalled job back in the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		store := queue.NewStore(database)
		runAt := time.Now().Add(requeueDelay)
		if err := store.Requeue(context.Background(), args[0], runAt); err != nil {
			return err
		}

		fmt.Printf("Job %s requeued to run at %s\n", args[0], runAt.UTC().Format(time.RFC3339))
		return nil
	},
}

var jobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old completed and failed jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		store := queue.NewStore(database)
		cutoff := time.Now().AddDate(0, 0, -cleanupDays)
		deleted, err := store.DeleteTerminalBefore(context.Background(), cutoff)
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d job(s) finished before %s\n",
			deleted, cutoff.UTC().Format("2006-01-02"))
		return nil
	},
}

func init() {
	jobsLsCmd.Flags().StringVar(&jobsStatusFlag, "status", "queued", "Filter by status (queued, running, completed, failed, stalled)")
	jobsLsCmd.Flags().StringVar(&jobsSpaceFlag, "space", "", "Filter by space name")
	jobsLsCmd.Flags().IntVar(&jobsLimitFlag, "limit", 50, "Maximum number of jobs to list")
	jobsRequeueCmd.Flags().DurationVar(&requeueDelay, "in", 0, "Delay before the job becomes due (e.g. 5m)")
	jobsCleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Delete terminal jobs older than this many days")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsLogCmd)
	JobsCmd.AddCommand(jobsRequeueCmd)
	JobsCmd.AddCommand(jobsCleanupCmd)
}
