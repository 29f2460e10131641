package tasks

import (
	"context"

	"github.com/gavelbot/gavel/dialog"
	"github.com/gavelbot/gavel/proposal"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
	"github.com/gavelbot/gavel/vote"
)

// voteSetupHandler submits each proposal that passed its temperature
// check to the external vote platform.
// Guard: only proposals in Voting without a vote URL are submitted,
// so redelivery cannot double-submit.
type voteSetupHandler struct {
	deps *Deps
}

func (h *voteSetupHandler) Type() queue.JobType {
	return queue.TypeVoteSetup
}

func (h *voteSetupHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	proposals, err := h.deps.Proposals.GetByStatus(ctx, cfg.Name, proposal.StatusVoting)
	if err != nil {
		return err
	}

	submitted := 0
	for _, p := range proposals {
		if p.VoteURL != "" {
			continue
		}
		_, voteURL, err := h.deps.Votes.SubmitProposal(ctx, vote.SubmitRequest{
			Space: cfg.VoteSpace,
			Title: p.Title,
			Body:  p.Body,
			Start: job.RunAt,
			End:   *job.DataDate,
		})
		if err != nil {
			// One rejected proposal must not block its siblings.
			h.deps.Logger.Errorw("Vote submission failed",
				"space", cfg.Name, "proposal", p.Hash, "error", err)
			continue
		}
		if err := h.deps.Proposals.SetVoteURL(ctx, p.Hash, voteURL); err != nil {
			return err
		}
		submitted++
	}

	h.deps.Logger.Infow("Vote setup complete",
		"space", cfg.Name, "submitted", submitted, "candidates", len(proposals))
	return nil
}

// voteRollupHandler posts the listing of everything up for vote.
// Guard: at least one Voting proposal has been submitted, and the
// rollup slot is still empty.
type voteRollupHandler struct {
	deps *Deps
}

func (h *voteRollupHandler) Type() queue.JobType {
	return queue.TypeVoteRollup
}

func (h *voteRollupHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	existing, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotVoteRollup)
	if err != nil {
		return err
	}
	if existing != "" {
		h.deps.Logger.Debugw("Vote rollup already posted", "space", cfg.Name)
		return nil
	}

	proposals, err := submittedVoting(ctx, h.deps, cfg.Name)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		h.deps.Logger.Debugw("Nothing up for vote, skipping rollup", "space", cfg.Name)
		return nil
	}

	content := dialog.VoteRollup(proposals, *job.DataDate)
	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotVoteRollup, messageID)
	})
}

// voteQuorumAlertHandler warns about proposals still under quorum
// shortly before voting closes.
// Guard: at least one open vote is under quorum; slot empty.
type voteQuorumAlertHandler struct {
	deps *Deps
}

func (h *voteQuorumAlertHandler) Type() queue.JobType {
	return queue.TypeVoteQuorumAlert
}

func (h *voteQuorumAlertHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}
	if cfg.VoteQuorum <= 0 {
		return nil
	}

	existing, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotVoteQuorumAlert)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	proposals, err := submittedVoting(ctx, h.deps, cfg.Name)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		return nil
	}

	results, err := h.deps.Votes.GetResults(ctx, voteIDs(proposals))
	if err != nil {
		return err
	}

	var under []*proposal.Proposal
	for _, p := range proposals {
		r := results[p.VoteID()]
		if r == nil || !r.QuorumMet(cfg.VoteQuorum) {
			under = append(under, p)
		}
	}
	if len(under) == 0 {
		h.deps.Logger.Debugw("All votes at quorum", "space", cfg.Name)
		return nil
	}

	content := dialog.VoteQuorumAlert(cfg.AlertRole, under, cfg.VoteQuorum, *job.DataDate)
	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotVoteQuorumAlert, messageID)
	})
}

// voteEndAlertHandler posts the voting-closes-soon reminder.
// Guard: slot empty.
type voteEndAlertHandler struct {
	deps *Deps
}

func (h *voteEndAlertHandler) Type() queue.JobType {
	return queue.TypeVoteEndAlert
}

func (h *voteEndAlertHandler) Execute(ctx context.Context, job *queue.Job) error {
	if err := requireDataDate(job); err != nil {
		return err
	}
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	existing, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotVoteEndAlert)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	content := dialog.VoteEndAlert(cfg.AlertRole, *job.DataDate)
	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotVoteEndAlert, messageID)
	})
}

// voteCloseHandler fetches final scores for every closed external
// vote and moves each proposal to Approved or Cancelled.
// Guard: at least one Voting proposal whose external vote has closed;
// still-open votes are left for the retry or the next close job.
type voteCloseHandler struct {
	deps *Deps
}

func (h *voteCloseHandler) Type() queue.JobType {
	return queue.TypeVoteClose
}

func (h *voteCloseHandler) Execute(ctx context.Context, job *queue.Job) error {
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	proposals, err := submittedVoting(ctx, h.deps, cfg.Name)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		h.deps.Logger.Debugw("No open votes to close", "space", cfg.Name)
		return nil
	}

	results, err := h.deps.Votes.GetResults(ctx, voteIDs(proposals))
	if err != nil {
		return err
	}

	moves := make(map[string]proposal.Status)
	for _, p := range proposals {
		r := results[p.VoteID()]
		if r == nil || !r.Closed {
			h.deps.Logger.Warnw("External vote not closed yet",
				"space", cfg.Name, "proposal", p.Hash)
			continue
		}

		passed := r.Passed(cfg.VoteQuorum)
		if err := h.deps.Proposals.SetVoteResults(ctx, p.Hash, &proposal.VoteResults{
			VoteID:     r.VoteID,
			Choices:    r.Choices,
			Scores:     r.Scores,
			TotalVotes: r.TotalVotes,
			QuorumMet:  r.QuorumMet(cfg.VoteQuorum),
			Passed:     passed,
			ClosedAt:   job.RunAt,
		}); err != nil {
			return err
		}

		if passed {
			moves[p.Hash] = proposal.StatusApproved
		} else {
			moves[p.Hash] = proposal.StatusCancelled
		}
	}

	if err := h.deps.Proposals.UpdateStatuses(ctx, moves); err != nil {
		return err
	}
	h.deps.Logger.Infow("Vote close complete",
		"space", cfg.Name, "closed", len(moves), "open", len(proposals)-len(moves))
	return nil
}

// voteResultsRollupHandler posts the cycle's outcome summary.
// Guard: at least one proposal resolved this cycle; slot empty.
type voteResultsRollupHandler struct {
	deps *Deps
}

func (h *voteResultsRollupHandler) Type() queue.JobType {
	return queue.TypeVoteResultsRollup
}

func (h *voteResultsRollupHandler) Execute(ctx context.Context, job *queue.Job) error {
	cfg, err := h.deps.spaceConfig(ctx, job)
	if err != nil {
		return err
	}

	existing, err := h.deps.Spaces.DialogMessageID(ctx, cfg.Name, space.SlotVoteResultsRollup)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}

	all, err := h.deps.Proposals.GetByCycle(ctx, cfg.Name, cfg.CurrentCycle)
	if err != nil {
		return err
	}
	var resolved []*proposal.Proposal
	for _, p := range all {
		if p.VoteResults != nil &&
			(p.Status == proposal.StatusApproved || p.Status == proposal.StatusCancelled) {
			resolved = append(resolved, p)
		}
	}
	if len(resolved) == 0 {
		h.deps.Logger.Debugw("Nothing resolved this cycle, skipping results rollup",
			"space", cfg.Name, "cycle", cfg.CurrentCycle)
		return nil
	}

	content := dialog.VoteResultsRollup(resolved)
	return h.deps.withDialog(ctx, func(client dialog.Handler) error {
		messageID, err := client.SendMessage(ctx, cfg.ChatChannel, content)
		if err != nil {
			return err
		}
		return h.deps.Spaces.SetDialogMessageID(ctx, cfg.Name, space.SlotVoteResultsRollup, messageID)
	})
}

// submittedVoting returns Voting proposals that carry a vote URL.
func submittedVoting(ctx context.Context, deps *Deps, spaceName string) ([]*proposal.Proposal, error) {
	all, err := deps.Proposals.GetByStatus(ctx, spaceName, proposal.StatusVoting)
	if err != nil {
		return nil, err
	}
	var submitted []*proposal.Proposal
	for _, p := range all {
		if p.VoteURL != "" {
			submitted = append(submitted, p)
		}
	}
	return submitted, nil
}

func voteIDs(proposals []*proposal.Proposal) []string {
	ids := make([]string, 0, len(proposals))
	for _, p := range proposals {
		ids = append(ids, p.VoteID())
	}
	return ids
}
