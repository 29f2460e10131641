package dialog

import (
	"context"
	"time"

	"github.com/gavelbot/gavel/logger"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
)

// OperatorNotifier posts queue failures to each space's operator
// channel. It implements queue.Notifier. Notification failures are
// logged and swallowed: the queue's own state is the source of truth
// and the operator can still find the job via the jobs CLI.
type OperatorNotifier struct {
	factory Factory
	spaces  *space.Store
}

func NewOperatorNotifier(factory Factory, spaces *space.Store) *OperatorNotifier {
	return &OperatorNotifier{factory: factory, spaces: spaces}
}

// JobFailed posts a permanent-failure alert.
func (n *OperatorNotifier) JobFailed(ctx context.Context, job *queue.Job, jobErr error) {
	content := JobFailedAlert(job.ID, job.Space, string(job.Type), job.RetryCount+1, jobErr.Error())
	n.post(ctx, job.Space, content)
}

// JobStalled posts a stall alert.
func (n *OperatorNotifier) JobStalled(ctx context.Context, job *queue.Job) {
	startedAt := time.Now()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	content := JobStalledAlert(job.ID, job.Space, string(job.Type), startedAt)
	n.post(ctx, job.Space, content)
}

func (n *OperatorNotifier) post(ctx context.Context, spaceName, content string) {
	cfg, err := n.spaces.Get(ctx, spaceName)
	if err != nil {
		logger.Errorw("Operator alert dropped, unknown space",
			"space", spaceName, "error", err)
		return
	}
	if cfg.OperatorChannel == "" {
		return
	}

	client := n.factory()
	if err := client.Login(ctx); err != nil {
		logger.Errorw("Operator alert dropped, chat login failed",
			"space", spaceName, "error", err)
		return
	}
	defer client.Logout(ctx)

	if _, err := client.SendMessage(ctx, cfg.OperatorChannel, content); err != nil {
		logger.Errorw("Operator alert dropped, send failed",
			"space", spaceName, "error", err)
	}
}
