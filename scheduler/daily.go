package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/space"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// CronExpr converts a "HH:MM" trigger time into its daily cron
// expression. The expression is validated against the parser so a bad
// trigger time surfaces at configuration time, not at tick time.
func CronExpr(triggerTime string) (string, error) {
	var hours, minutes int
	if _, err := fmt.Sscanf(triggerTime, "%d:%d", &hours, &minutes); err != nil {
		return "", errors.NewConfigError("malformed trigger time %q (want HH:MM)", triggerTime)
	}
	expr := fmt.Sprintf("%d %d * * *", minutes, hours)
	if _, err := cronParser.Parse(expr); err != nil {
		return "", errors.NewConfigError("trigger time %q: %v", triggerTime, err)
	}
	return expr, nil
}

// NextRunTime parses the cron expression and returns the next run time
// after the given time, in UTC.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after.UTC()), nil
}

// Daily re-resolves every auto-enabled space's calendar once per day
// at that space's trigger time. Each firing re-schedules the upcoming
// windows, which the deterministic job ids make idempotent.
type Daily struct {
	scheduler *Scheduler
	spaces    *space.Store
	logger    *zap.SugaredLogger
	interval  time.Duration

	mu       sync.Mutex
	lastTick time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDaily creates the daily driver. interval is the poll resolution;
// it defaults to one minute, fine-grained enough for "HH:MM" triggers.
func NewDaily(s *Scheduler, spaces *space.Store, interval time.Duration, log *zap.SugaredLogger) *Daily {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Daily{
		scheduler: s,
		spaces:    spaces,
		logger:    log.Named("daily"),
		interval:  interval,
	}
}

// Start begins the tick loop in a background goroutine.
func (d *Daily) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Lock()
	d.lastTick = time.Now().UTC()
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Infow("Daily scheduler started", "interval", d.interval)
}

// Stop cancels the tick loop and waits for it to exit.
func (d *Daily) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Infow("Daily scheduler stopped")
}

func (d *Daily) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx, time.Now())
		}
	}
}

// Tick fires every space whose trigger time fell inside
// (lastTick, now]. Exported for tests; the loop calls it on the
// configured interval.
func (d *Daily) Tick(ctx context.Context, now time.Time) {
	now = now.UTC()
	d.mu.Lock()
	since := d.lastTick
	d.lastTick = now
	d.mu.Unlock()

	configs, err := d.spaces.ListAutoEnabled(ctx)
	if err != nil {
		d.logger.Errorw("Failed to list spaces for daily tick", "error", err)
		return
	}

	for _, cfg := range configs {
		expr, err := CronExpr(cfg.CycleTriggerTime)
		if err != nil {
			d.logger.Errorw("Skipping space with bad trigger time",
				"space", cfg.Name, "error", err)
			continue
		}
		next, err := NextRunTime(expr, since)
		if err != nil || next.After(now) {
			continue
		}

		if err := d.scheduler.ScheduleSpace(ctx, cfg, now); err != nil {
			d.logger.Errorw("Daily re-schedule failed",
				"space", cfg.Name, "error", err)
			continue
		}
		d.logger.Infow("Daily re-schedule fired",
			"space", cfg.Name, "trigger", cfg.CycleTriggerTime)
	}
}
