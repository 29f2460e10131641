package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/gavelbot/gavel/errors"
	"github.com/gavelbot/gavel/logger"
)

// Queue is the client half of the job queue: schedulers enqueue
// through it, the worker pool drains it. It is an explicit value
// constructed once at process start and passed to whoever needs it,
// never a package-level singleton.
type Queue struct {
	store *Store
}

// NewQueue creates a queue client over the given database.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// Store exposes the underlying job store for operator tooling.
func (q *Queue) Store() *Store {
	return q.store
}

// Schedule enqueues a job for a space at runAt. The deterministic id
// makes this an upsert: scheduling the same logical job twice moves
// the run time instead of adding a second delivery, and a job that
// already completed stays completed.
func (q *Queue) Schedule(ctx context.Context, space string, jobType JobType, runAt time.Time, dataDate *time.Time) (*Job, error) {
	job := NewJob(space, jobType, runAt, dataDate)
	if err := q.store.Upsert(ctx, job); err != nil {
		return nil, errors.Wrapf(err, "scheduling %s for %s", jobType, space)
	}
	logger.Debugw("Scheduled job",
		"job_id", job.ID,
		"space", space,
		"type", jobType,
		"run_at", job.RunAt)
	return job, nil
}
