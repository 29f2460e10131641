package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/gavelbot/gavel/dialog"
	"github.com/gavelbot/gavel/logger"
	"github.com/gavelbot/gavel/proposal"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/scheduler"
	"github.com/gavelbot/gavel/space"
	"github.com/gavelbot/gavel/tasks"
	"github.com/gavelbot/gavel/vote"
)

// dailyTickInterval is how often the in-process scheduler checks for
// spaces whose daily trigger has passed.
const dailyTickInterval = time.Minute

// StartCmd runs the gavel daemon in the foreground.
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the gavel daemon",
	Long: `Run the gavel daemon in foreground mode.

The daemon will:
- Schedule governance-cycle jobs for every auto-enabled space
- Run the worker pool against the durable job queue
- Fire each space's daily trigger to roll schedules forward
- Alert the operator channel on permanently failed or stalled jobs
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workers, _ := cmd.Flags().GetInt("workers")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is not configured (set GAVEL_TELEGRAM_TOKEN)")
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		spaces := space.NewStore(database)
		proposals := proposal.NewStore(database)
		factory := dialog.TelegramFactory(cfg.Telegram.Token)
		votes := vote.NewSnapshot(cfg.Snapshot.HubURL, cfg.Snapshot.BaseURL)

		registry := queue.NewHandlerRegistry()
		tasks.Register(registry, &tasks.Deps{
			Spaces:    spaces,
			Proposals: proposals,
			Dialog:    factory,
			Votes:     votes,
			Logger:    logger.Logger.Named("tasks"),
		})

		poolCfg := queue.DefaultWorkerPoolConfig()
		poolCfg.Workers = cfg.Queue.Workers
		if workers > 0 {
			poolCfg.Workers = workers
		}
		if cfg.Queue.PollIntervalSeconds > 0 {
			poolCfg.PollInterval = time.Duration(cfg.Queue.PollIntervalSeconds) * time.Second
		}
		if cfg.Queue.ClaimBatch > 0 {
			poolCfg.ClaimBatch = cfg.Queue.ClaimBatch
		}
		if cfg.Queue.StallTimeoutMinutes > 0 {
			poolCfg.StallTimeout = time.Duration(cfg.Queue.StallTimeoutMinutes) * time.Minute
		}
		if cfg.Queue.RatePerSecond > 0 {
			poolCfg.RateLimit = rate.Limit(cfg.Queue.RatePerSecond)
		}
		if cfg.Queue.RateBurst > 0 {
			poolCfg.RateBurst = cfg.Queue.RateBurst
		}

		notifier := dialog.NewOperatorNotifier(factory, spaces)
		pool := queue.NewWorkerPool(ctx, database, poolCfg, registry, notifier, logger.Logger)

		sched := scheduler.New(queue.NewQueue(database), spaces, logger.Logger)
		if err := sched.Bootstrap(ctx, time.Now()); err != nil {
			return err
		}

		daily := scheduler.NewDaily(sched, spaces, dailyTickInterval, logger.Logger)

		pool.Start()
		daily.Start(ctx)

		fmt.Println("gavel daemon started")
		fmt.Printf("  Database: %s\n", cfg.GetDatabasePath())
		fmt.Printf("  Workers: %d\n", poolCfg.Workers)
		fmt.Printf("  Poll interval: %v\n", poolCfg.PollInterval)
		fmt.Printf("  Stall timeout: %v\n", poolCfg.StallTimeout)
		fmt.Println("\nPress Ctrl+C to shut down")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")

		// Stop components in reverse order of startup
		daily.Stop()
		pool.Stop()
		cancel()

		fmt.Println("gavel daemon stopped")
		return nil
	},
}

func init() {
	StartCmd.Flags().Int("workers", 0, "Override the configured number of concurrent workers")
}
