// Package scheduler translates resolved stage windows into queued jobs
// and drives the daily per-space cadence.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gavelbot/gavel/cycle"
	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
)

// Job offsets relative to window boundaries. These are deliberately
// constants, not configuration: every space gets the same cadence
// around its own trigger time.
const (
	cycleIncrementLead = 5 * time.Second
	startAlertLead     = time.Hour
	endAlertLead       = time.Hour
	quorumAlertLead    = 2 * time.Hour
	rollupSettleDelay  = 60 * time.Second
)

// Scheduler turns stage windows into delayed jobs. It holds the queue
// client by value reference, never through package state.
type Scheduler struct {
	queue  *queue.Queue
	spaces *space.Store
	logger *zap.SugaredLogger
}

func New(q *queue.Queue, spaces *space.Store, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		queue:  q,
		spaces: spaces,
		logger: log.Named("scheduler"),
	}
}

// ScheduleCycle emits the full job set for a sequence of stage
// windows. Deterministic job ids make this idempotent: calling it
// again over overlapping windows refreshes existing rows instead of
// duplicating deliveries, so it runs safely on every bootstrap and
// after every rollover.
func (s *Scheduler) ScheduleCycle(ctx context.Context, spaceName string, windows []cycle.StageWindow) error {
	scheduled := 0
	for _, w := range windows {
		var err error
		switch w.Title {
		case cycle.StageTemperatureCheck:
			err = s.scheduleTemperatureCheck(ctx, spaceName, w)
		case cycle.StageSnapshotVote:
			err = s.scheduleSnapshotVote(ctx, spaceName, w)
		case cycle.StageExecution, cycle.StageDelay:
			// No jobs anchor to these windows.
			continue
		default:
			err = errors.NewConfigError("unknown stage title %q", w.Title)
		}
		if err != nil {
			return errors.Wrapf(err, "scheduling %s window for %s", w.Title, spaceName)
		}
		scheduled++
	}

	s.logger.Infow("Scheduled cycle jobs",
		"space", spaceName,
		"windows", len(windows),
		"job_windows", scheduled)
	return nil
}

// scheduleTemperatureCheck anchors the temperature-check job set to
// one window. The cycle increment fires just before the window opens
// so the new cycle number is in place when the start alert goes out.
func (s *Scheduler) scheduleTemperatureCheck(ctx context.Context, spaceName string, w cycle.StageWindow) error {
	start, end := w.Start, w.End
	jobs := []struct {
		jobType  queue.JobType
		runAt    time.Time
		dataDate *time.Time
	}{
		{queue.TypeIncrementGovernanceCycle, start.Add(-cycleIncrementLead), nil},
		{queue.TypeTemperatureCheckStartAlert, start.Add(-startAlertLead), &start},
		{queue.TypeTemperatureCheckRollup, start, &end},
		{queue.TypeDeleteTemperatureCheckStartAlert, start, nil},
		{queue.TypeTemperatureCheckEndAlert, end.Add(-endAlertLead), &end},
		{queue.TypeDeleteTemperatureCheckEndAlert, end, nil},
		{queue.TypeTemperatureCheckClose, end, nil},
	}
	return s.enqueue(ctx, spaceName, jobs)
}

// scheduleSnapshotVote anchors the vote job set to one window. Rollups
// trail their boundary by a settle delay so the vote platform has the
// proposal (or its final scores) available when the rollup reads it.
func (s *Scheduler) scheduleSnapshotVote(ctx context.Context, spaceName string, w cycle.StageWindow) error {
	start, end := w.Start, w.End
	jobs := []struct {
		jobType  queue.JobType
		runAt    time.Time
		dataDate *time.Time
	}{
		{queue.TypeVoteSetup, start, &end},
		{queue.TypeVoteRollup, start.Add(rollupSettleDelay), &end},
		{queue.TypeVoteQuorumAlert, end.Add(-quorumAlertLead), &end},
		{queue.TypeVoteEndAlert, end.Add(-endAlertLead), &end},
		{queue.TypeDeleteVoteEndAlert, end, nil},
		{queue.TypeVoteClose, end, nil},
		{queue.TypeVoteResultsRollup, end.Add(rollupSettleDelay), nil},
	}
	return s.enqueue(ctx, spaceName, jobs)
}

func (s *Scheduler) enqueue(ctx context.Context, spaceName string, jobs []struct {
	jobType  queue.JobType
	runAt    time.Time
	dataDate *time.Time
}) error {
	for _, j := range jobs {
		if _, err := s.queue.Schedule(ctx, spaceName, j.jobType, j.runAt, j.dataDate); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleSpace resolves a space's calendar at now and schedules the
// resulting windows. Windows anchor to the space's cycle cadence, so
// re-resolving on any day of a cycle lands on the same job ids. This
// is the per-space unit of work for bootstrap and for the daily
// re-resolution tick.
func (s *Scheduler) ScheduleSpace(ctx context.Context, cfg *space.Config, now time.Time) error {
	// The daily alert rides the trigger cadence. Computing it first
	// also validates the trigger time before any window jobs are
	// written.
	nextTrigger, err := cycle.NextTrigger(now, cfg.CycleTriggerTime)
	if err != nil {
		return errors.Wrapf(err, "resolving calendar for %s", cfg.Name)
	}

	windows, err := cycle.Resolve(cycle.DefaultTemplate(), cfg.CycleStageLengths, cfg.CycleAnchor, now)
	if err != nil {
		return errors.Wrapf(err, "resolving calendar for %s", cfg.Name)
	}
	if err := s.ScheduleCycle(ctx, cfg.Name, windows); err != nil {
		return err
	}

	_, err = s.queue.Schedule(ctx, cfg.Name, queue.TypeSendDailyAlert, nextTrigger, nil)
	return err
}

// Bootstrap schedules every auto-enabled space. A configuration error
// in one space is logged and skipped so it cannot block the others.
func (s *Scheduler) Bootstrap(ctx context.Context, now time.Time) error {
	configs, err := s.spaces.ListAutoEnabled(ctx)
	if err != nil {
		return errors.Wrap(err, "listing auto-enabled spaces")
	}

	for _, cfg := range configs {
		if err := s.ScheduleSpace(ctx, cfg, now); err != nil {
			if errors.IsConfigError(err) {
				s.logger.Errorw("Skipping space with bad calendar config",
					"space", cfg.Name, "error", err)
				continue
			}
			return err
		}
	}

	s.logger.Infow("Bootstrap complete", "spaces", len(configs))
	return nil
}
