package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/gavelbot/gavel/errors"
)

// Store handles persistence of scheduled jobs and their execution
// audit log.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, space, job_type, run_at, data_date, status,
	retry_count, max_retries, error, created_at, started_at, completed_at,
	updated_at`

// Upsert inserts a job or refreshes an existing row with the same id.
// A completed or permanently failed row is left alone so a re-schedule
// pass cannot resurrect finished work; a queued row has its run time
// and data date refreshed.
func (s *Store) Upsert(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_jobs (
			id, space, job_type, run_at, data_date, status,
			retry_count, max_retries, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_at = excluded.run_at,
			data_date = excluded.data_date,
			updated_at = excluded.updated_at
		WHERE auto_jobs.status = 'queued'`,
		job.ID, job.Space, string(job.Type),
		job.RunAt.UTC().Format(time.RFC3339),
		formatNullTime(job.DataDate),
		string(job.Status), job.RetryCount, job.MaxRetries,
		job.CreatedAt.UTC().Format(time.RFC3339),
		job.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrap(err, "upserting job")
	}
	return nil
}

// Get retrieves a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM auto_jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job %q not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying job")
	}
	return job, nil
}

// ClaimDue atomically claims up to limit queued jobs whose run time
// has passed, moving them to running. A job claimed here is invisible
// to concurrent claimers, which is what gives at-least-once rather
// than n-times delivery within one process.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	nowStr := now.UTC().Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE auto_jobs
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM auto_jobs
			WHERE status = 'queued' AND run_at <= ?
			ORDER BY run_at
			LIMIT ?
		)
		RETURNING `+jobColumns, nowStr, nowStr, nowStr, limit)
	if err != nil {
		return nil, errors.Wrap(err, "claiming due jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkCompleted moves a job to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE auto_jobs
		SET status = 'completed', error = NULL, completed_at = ?, updated_at = ?
		WHERE id = ?`, now, now, id)
	if err != nil {
		return errors.Wrap(err, "marking job completed")
	}
	return nil
}

// MarkForRetry re-queues a failed job with an incremented retry count
// and a pushed-back run time.
func (s *Store) MarkForRetry(ctx context.Context, id string, jobErr error, nextRun time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE auto_jobs
		SET status = 'queued', retry_count = retry_count + 1,
			error = ?, run_at = ?, started_at = NULL, updated_at = ?
		WHERE id = ?`,
		jobErr.Error(), nextRun.UTC().Format(time.RFC3339), now, id)
	if err != nil {
		return errors.Wrap(err, "marking job for retry")
	}
	return nil
}

// MarkFailed moves a job to permanently failed after retries are
// exhausted.
func (s *Store) MarkFailed(ctx context.Context, id string, jobErr error) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE auto_jobs
		SET status = 'failed', error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`, jobErr.Error(), now, now, id)
	if err != nil {
		return errors.Wrap(err, "marking job failed")
	}
	return nil
}

// ListByStatus returns jobs in the given status, soonest first.
func (s *Store) ListByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM auto_jobs
		WHERE status = ? ORDER BY run_at LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing jobs by status")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListBySpace returns all jobs for a space, soonest first.
func (s *Store) ListBySpace(ctx context.Context, space string, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM auto_jobs
		WHERE space = ? ORDER BY run_at LIMIT ?`, space, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing jobs by space")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkStalled finds jobs that have been running longer than timeout
// and marks them stalled for operator inspection. Returns the jobs it
// transitioned.
func (s *Store) MarkStalled(ctx context.Context, now time.Time, timeout time.Duration) ([]*Job, error) {
	cutoff := now.Add(-timeout).UTC().Format(time.RFC3339)
	nowStr := now.UTC().Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE auto_jobs
		SET status = 'stalled', updated_at = ?
		WHERE status = 'running' AND started_at <= ?
		RETURNING `+jobColumns, nowStr, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "marking stalled jobs")
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Requeue moves a stalled or failed job back to queued for manual
// retry. Retry count is reset so the job gets a full retry budget.
func (s *Store) Requeue(ctx context.Context, id string, runAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE auto_jobs
		SET status = 'queued', retry_count = 0, error = NULL,
			run_at = ?, started_at = NULL, completed_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('stalled', 'failed')`,
		runAt.UTC().Format(time.RFC3339), now, id)
	if err != nil {
		return errors.Wrap(err, "requeuing job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "checking requeue result")
	}
	if n == 0 {
		return errors.NewNotFoundError("no stalled or failed job %q", id)
	}
	return nil
}

// DeleteTerminalBefore removes completed and failed jobs whose run
// time is older than the cutoff. Execution history for them is removed
// as well.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339)

	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM job_executions WHERE job_id IN (
			SELECT id FROM auto_jobs
			WHERE status IN ('completed', 'failed') AND run_at < ?
		)`, cutoffStr); err != nil {
		return 0, errors.Wrap(err, "deleting old job executions")
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM auto_jobs
		WHERE status IN ('completed', 'failed') AND run_at < ?`, cutoffStr)
	if err != nil {
		return 0, errors.Wrap(err, "deleting old jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting deleted jobs")
	}
	return n, nil
}

// Execution is one row of the handler invocation audit log.
type Execution struct {
	ID          string
	JobID       string
	Attempt     int
	Status      JobStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	DurationMS  int64
}

// RecordExecution appends one handler invocation to the audit log.
func (s *Store) RecordExecution(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_executions (
			id, job_id, attempt, status, error_message,
			started_at, completed_at, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.JobID, exec.Attempt, string(exec.Status),
		nullString(exec.Error),
		exec.StartedAt.UTC().Format(time.RFC3339),
		formatNullTime(exec.CompletedAt),
		exec.DurationMS,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrap(err, "recording job execution")
	}
	return nil
}

// ListExecutions returns the audit log for a job, oldest first.
func (s *Store) ListExecutions(ctx context.Context, jobID string) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, attempt, status, error_message,
			started_at, completed_at, duration_ms
		FROM job_executions WHERE job_id = ?
		ORDER BY started_at, attempt`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "listing job executions")
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		var e Execution
		var status string
		var errMsg sql.NullString
		var started string
		var completed sql.NullString
		var duration sql.NullInt64

		if err := rows.Scan(&e.ID, &e.JobID, &e.Attempt, &status, &errMsg,
			&started, &completed, &duration); err != nil {
			return nil, errors.Wrap(err, "scanning execution row")
		}
		e.Status = JobStatus(status)
		e.Error = errMsg.String
		if e.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, errors.Wrap(err, "parsing started_at")
		}
		if completed.Valid {
			t, err := time.Parse(time.RFC3339, completed.String)
			if err != nil {
				return nil, errors.Wrap(err, "parsing completed_at")
			}
			e.CompletedAt = &t
		}
		e.DurationMS = duration.Int64
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning job row")
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var jobType, status string
	var runAt, created, updated string
	var dataDate, jobErr, started, completed sql.NullString

	err := row.Scan(&job.ID, &job.Space, &jobType, &runAt, &dataDate, &status,
		&job.RetryCount, &job.MaxRetries, &jobErr, &created, &started,
		&completed, &updated)
	if err != nil {
		return nil, err
	}

	job.Type = JobType(jobType)
	job.Status = JobStatus(status)
	job.Error = jobErr.String

	if job.RunAt, err = time.Parse(time.RFC3339, runAt); err != nil {
		return nil, errors.Wrap(err, "parsing run_at")
	}
	if job.DataDate, err = parseNullTime(dataDate); err != nil {
		return nil, errors.Wrap(err, "parsing data_date")
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, errors.Wrap(err, "parsing created_at")
	}
	if job.StartedAt, err = parseNullTime(started); err != nil {
		return nil, errors.Wrap(err, "parsing started_at")
	}
	if job.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, errors.Wrap(err, "parsing completed_at")
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, errors.Wrap(err, "parsing updated_at")
	}
	return &job, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
