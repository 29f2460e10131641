package tasks

import (
	"context"

	"github.com/gavelbot/gavel/cycle"
	"github.com/gavelbot/gavel/dialog"
	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
)

// incrementCycleHandler advances the space's governance cycle counter
// at each cycle boundary. The job's run time identifies the boundary,
// so duplicate delivery of the same job is a no-op and the counter
// stays strictly monotonic. A fresh boundary also clears the previous
// cycle's per-cycle message slots so their handlers post again.
type incrementCycleHandler struct {
	deps *Deps
}

func (h *incrementCycleHandler) Type() queue.JobType {
	return queue.TypeIncrementGovernanceCycle
}

func (h *incrementCycleHandler) Execute(ctx context.Context, job *queue.Job) error {
	cycleNum, applied, err := h.deps.Spaces.IncrementCycle(ctx, job.Space, job.RunAt)
	if err != nil {
		return err
	}
	if !applied {
		h.deps.Logger.Debugw("Cycle already incremented for this trigger",
			"space", job.Space, "cycle", cycleNum)
		return nil
	}

	// Only a fresh boundary clears: a stale duplicate must not wipe
	// slots the new cycle's handlers have already filled.
	for _, slot := range []space.Slot{
		space.SlotVoteRollup,
		space.SlotVoteQuorumAlert,
		space.SlotVoteResultsRollup,
	} {
		if err := h.deps.Spaces.ClearDialogMessageID(ctx, job.Space, slot); err != nil {
			h.deps.Logger.Warnw("Failed to clear cycle message slot",
				"space", job.Space, "slot", slot, "error", err)
		}
	}

	h.deps.Logger.Infow("Governance cycle incremented",
		"space", job.Space, "cycle", cycleNum)
	return nil
}

// dailyAlertHandler posts the day-counter reminder. The previous
// day's message is replaced, not stacked: delete the stored one, post
// the new one, persist the new id.
type dailyAlertHandler struct {
	deps *Deps
}

func (h *dailyAlertHandler) Type() queue.JobType {
	return queue.TypeSendDailyAlert
}

func (h *dailyAlertHandler) Execute(ctx context.Context, job *queue.Job) error {
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	day, current, err := cycle.Position(cfg.CycleAnchor, cycle.DefaultTemplate(), cfg.CycleStageLengths, job.RunAt)
	if err != nil {
		return errors.Wrapf(err, "computing cycle position for %s", job.Space)
	}

	displayName := cfg.DisplayName
	if displayName == "" {
		displayName = cfg.Name
	}
	content := dialog.DailyAlert(displayName, cfg.CurrentCycle, day, string(current.Title), current.End)

	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		if prev, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotDailyAlert); err == nil && prev != "" {
			if err := client.DeleteMessage(ctx, cfg.ChatChannel, prev); err != nil {
				h.deps.Logger.Warnw("Failed to delete previous daily alert",
					"space", cfg.Name, "message_id", prev, "error", err)
			}
		}

		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotDailyAlert, messageID)
	})
}
