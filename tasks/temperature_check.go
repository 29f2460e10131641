package tasks

import (
	"context"

	"github.com/gavelbot/gavel/dialog"
	"github.com/gavelbot/gavel/proposal"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
)

// startAlertHandler posts the temperature-check start reminder.
// Guard: the alert slot is empty, so redelivery never posts twice.
type startAlertHandler struct {
	deps *Deps
}

func (h *startAlertHandler) Type() queue.JobType {
	return queue.TypeTemperatureCheckStartAlert
}

func (h *startAlertHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	existing, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotTemperatureCheckStartAlert)
	if err != nil {
		return err
	}
	if existing != "" {
		h.deps.Logger.Debugw("Start alert already sent", "space", cfg.Name)
		return nil
	}

	content := dialog.TemperatureCheckStartAlert(cfg.AlertRole, *job.DataDate)
	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotTemperatureCheckStartAlert, messageID)
	})
}

// endAlertHandler posts the temperature-check end reminder with the
// same slot guard as the start alert.
type endAlertHandler struct {
	deps *Deps
}

func (h *endAlertHandler) Type() queue.JobType {
	return queue.TypeTemperatureCheckEndAlert
}

func (h *endAlertHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	existing, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotTemperatureCheckEndAlert)
	if err != nil {
		return err
	}
	if existing != "" {
		h.deps.Logger.Debugw("End alert already sent", "space", cfg.Name)
		return nil
	}

	content := dialog.TemperatureCheckEndAlert(cfg.AlertRole, *job.DataDate)
	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotTemperatureCheckEndAlert, messageID)
	})
}

// deleteAlertHandler removes a previously posted alert and clears its
// slot. One implementation serves all three delete job types.
// Guard: the slot holds a message id; an empty slot is a no-op.
type deleteAlertHandler struct {
	deps    *Deps
	jobType queue.JobType
	slot    space.Slot
}

func (h *deleteAlertHandler) Type() queue.JobType {
	return h.jobType
}

func (h *deleteAlertHandler) Execute(ctx context.Context, job *queue.Job) error {
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	messageID, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, h.slot)
	if err != nil {
		return err
	}
	if messageID == "" {
		h.deps.Logger.Debugw("No alert message to delete",
			"space", cfg.Name, "slot", h.slot)
		return nil
	}

	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		if err := client.DeleteMessage(ctx, cfg.ChatChannel, messageID); err != nil {
			return err
		}
		return h.deps.Spaces.ClearDialogMessageID(ctx, cfg.Name, h.slot)
	})
}

// temperatureCheckRollupHandler opens the temperature-check stage:
// posts the rollup listing, opens one poll per proposal, and moves the
// batch from Discussion to TemperatureCheck.
// Guard: at least one proposal is in Discussion; after the commit the
// same job redelivered finds none and no-ops.
type temperatureCheckRollupHandler struct {
	deps *Deps
}

func (h *temperatureCheckRollupHandler) Type() queue.JobType {
	return queue.TypeTemperatureCheckRollup
}

func (h *temperatureCheckRollupHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	proposals, err := h.deps.Proposals.GetByStatus(ctx, cfg.Name, proposal.StatusDiscussion)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		h.deps.Logger.Debugw("No proposals in discussion, skipping rollup", "space", cfg.Name)
		return nil
	}

	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		content := dialog.TemperatureCheckRollup(proposals, *job.DataDate)
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}

		// Poll failures affect only their own proposal; siblings
		// proceed and the close handler treats a missing poll as a
		// zero-vote fail.
		moves := make(map[string]proposal.Status, len(proposals))
		for _, p := range proposals {
			moves[p.Hash] = proposal.StatusTemperatureCheck

			pollID, err := client.SendPoll(ctx, cfg.ChatChannel, dialog.PollQuestion(p))
			if err != nil {
				h.deps.Logger.Errorw("Failed to open poll",
					"space", cfg.Name, "proposal", p.Hash, "error", err)
				continue
			}
			if err := h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.PollSlot(p.Hash), pollID); err != nil {
				h.deps.Logger.Errorw("Failed to store poll message id",
					"space", cfg.Name, "proposal", p.Hash, "error", err)
			}
		}

		if err := h.deps.Proposals.UpdateStatuses(ctx, moves); err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotTemperatureCheckRollup, messageID)
	})
}

// temperatureCheckCloseHandler closes the stage: tallies each
// proposal's poll, applies the pass rule, and moves the batch to
// Voting or Cancelled.
// Guard: at least one proposal is in TemperatureCheck.
type temperatureCheckCloseHandler struct {
	deps *Deps
}

func (h *temperatureCheckCloseHandler) Type() queue.JobType {
	return queue.TypeTemperatureCheckClose
}

func (h *temperatureCheckCloseHandler) Execute(ctx context.Context, job *queue.Job) error {
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	proposals, err := h.deps.Proposals.GetByStatus(ctx, cfg.Name, proposal.StatusTemperatureCheck)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		h.deps.Logger.Debugw("No proposals in temperature check, skipping close", "space", cfg.Name)
		return nil
	}

	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		moves := make(map[string]proposal.Status, len(proposals))
		for _, p := range proposals {
			yes, no := 0, 0
			pollID, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.PollSlot(p.Hash))
			if err != nil {
				return err
			}
			if pollID != "" {
				yes, no, err = client.ClosePoll(ctx, cfg.ChatChannel, pollID)
				if err != nil {
					// An unreadable poll tallies as zero votes, the
					// same as a poll that never opened.
					h.deps.Logger.Errorw("Failed to close poll",
						"space", cfg.Name, "proposal", p.Hash, "error", err)
					yes, no = 0, 0
				}
			}

			p.TemperatureCheckYes, p.TemperatureCheckNo = yes, no
			if err := h.deps.Proposals.SetTemperatureCheckTally(ctx, p.Hash, yes, no); err != nil {
				return err
			}

			passed := p.PassesTemperatureCheck(cfg.Poll.MinYesVotes, cfg.Poll.YesNoRatio)
			if passed {
				moves[p.Hash] = proposal.StatusVoting
			} else {
				moves[p.Hash] = proposal.StatusCancelled
			}

			// The per-proposal results message is best effort.
			if _, err := client.SendMessage(ctx, cfg.ChatChannel, dialog.PollResults(p, passed)); err != nil {
				h.deps.Logger.Errorw("Failed to post poll results",
					"space", cfg.Name, "proposal", p.Hash, "error", err)
			}
		}

		if err := h.deps.Proposals.UpdateStatuses(ctx, moves); err != nil {
			return err
		}
		for hash := range moves {
			if err := h.deps.Spaces.ClearDialogMessageID(ctx, cfg.Name, space.PollSlot(hash)); err != nil {
				h.deps.Logger.Warnw("Failed to clear poll slot",
					"space", cfg.Name, "proposal", hash, "error", err)
			}
		}
		return nil
	})
}
