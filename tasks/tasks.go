// Package tasks implements the stage handlers behind every job type.
//
// Every handler follows the same three-step shape: a guard re-derives
// from persisted state whether the action still applies, the action
// performs the external side effect, and the commit persists new
// proposal statuses and message-id bookkeeping. Guards make the
// handlers safe under the queue's at-least-once delivery; two jobs in
// the same window racing within a second must both land safely.
package tasks

import (
	"context"

	"go.uber.org/zap"

	"github.com/gavelbot/gavel/dialog"
	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/proposal"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
	"github.com/gavelbot/gavel/vote"
)

// Deps carries the collaborators every handler needs. One Deps value
// is built at process start and shared; the chat client is the
// exception, created fresh per invocation through the factory.
type Deps struct {
	Spaces    *space.Store
	Proposals *proposal.Store
	Dialog    dialog.Factory
	Votes     vote.Client
	Logger    *zap.SugaredLogger
}

// Register wires every stage handler into the registry.
func Register(registry *queue.HandlerRegistry, deps *Deps) {
	registry.Register(&incrementCycleHandler{deps})
	registry.Register(&dailyAlertHandler{deps})

	registry.Register(&startAlertHandler{deps})
	registry.Register(&deleteAlertHandler{deps, queue.TypeDeleteTemperatureCheckStartAlert, space.SlotTemperatureCheckStartAlert})
	registry.Register(&temperatureCheckRollupHandler{deps})
	registry.Register(&endAlertHandler{deps})
	registry.Register(&deleteAlertHandler{deps, queue.TypeDeleteTemperatureCheckEndAlert, space.SlotTemperatureCheckEndAlert})
	registry.Register(&temperatureCheckCloseHandler{deps})

	registry.Register(&voteSetupHandler{deps})
	registry.Register(&voteRollupHandler{deps})
	registry.Register(&voteQuorumAlertHandler{deps})
	registry.Register(&voteEndAlertHandler{deps})
	registry.Register(&deleteAlertHandler{deps, queue.TypeDeleteVoteEndAlert, space.SlotVoteEndAlert})
	registry.Register(&voteCloseHandler{deps})
	registry.Register(&voteResultsRollupHandler{deps})
}

// withDialog runs fn with a logged-in chat client. The client lives
// for exactly one invocation: connect, use, log out.
func (d *Deps) withDialog(ctx context.Context, fn func(client dialog.Handler) error) error {
	client := d.Dialog()
	if err := client.Login(ctx); err != nil {
		return errors.Wrap(err, "chat login")
	}
	defer client.Logout(ctx)
	return fn(client)
}

// spaceConfig loads the space a job belongs to.
func (d *Deps) spaceConfig(ctx context.Context, job *queue.Job) (*space.Config, error) {
	cfg, err := d.Spaces.Get(ctx, job.Space)
	if err != nil {
		return nil, errors.Wrapf(err, "loading space for job %s", job.ID)
	}
	return cfg, nil
}

// requireDataDate rejects malformed jobs missing their window anchor.
func requireDataDate(job *queue.Job) error {
	if job.DataDate == nil {
		return errors.Newf("job %s has no data date", job.ID)
	}
	return nil
}
