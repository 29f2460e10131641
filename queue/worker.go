package queue

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WorkerPoolConfig contains configuration for the worker pool.
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // how often to check for due jobs
	ClaimBatch   int           `json:"claim_batch"`   // max jobs claimed per poll
	StallTimeout time.Duration `json:"stall_timeout"` // running-for-longer-than-this is stalled
	RateLimit    rate.Limit    `json:"rate_limit"`    // handler executions per second
	RateBurst    int           `json:"rate_burst"`
}

// DefaultWorkerPoolConfig returns sensible defaults. A single worker
// keeps handler execution sequential per process, which the stage
// handlers rely on for their chat-client lifecycle.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 5 * time.Second,
		ClaimBatch:   10,
		StallTimeout: 10 * time.Minute,
		RateLimit:    rate.Limit(5),
		RateBurst:    10,
	}
}

// WorkerPool polls the job store for due jobs and executes them
// through the handler registry, applying the retry policy on failure.
type WorkerPool struct {
	store    *Store
	registry *HandlerRegistry
	notifier Notifier // optional, nil means no operator alerts
	config   WorkerPoolConfig
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewWorkerPool creates a worker pool. Callers must register handlers
// on the registry before calling Start.
func NewWorkerPool(ctx context.Context, db *sql.DB, cfg WorkerPoolConfig, registry *HandlerRegistry, notifier Notifier, log *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		store:     NewStore(db),
		registry:  registry,
		notifier:  notifier,
		config:    cfg,
		limiter:   rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:    log.Named("queue"),
		parentCtx: ctx,
		ctx:       workerCtx,
		cancel:    cancel,
	}
}

// Start begins polling for due jobs. Jobs orphaned in running state by
// a previous crash are flagged as stalled on the first stall sweep.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		// Restart after a previous Stop.
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
	default:
	}
	wp.mu.Unlock()

	wp.logger.Infow("Starting worker pool",
		"workers", wp.config.Workers,
		"poll_interval", wp.config.PollInterval,
		"handlers", len(wp.registry.Types()))

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.wg.Add(1)
	go wp.stallWatcher()
}

// Stop cancels all workers and waits for in-flight jobs to finish.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Infow("Worker pool stopped")
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			wp.drainDue(id)
		}
	}
}

func (wp *WorkerPool) drainDue(workerID int) {
	jobs, err := wp.store.ClaimDue(wp.ctx, time.Now(), wp.config.ClaimBatch)
	if err != nil {
		wp.logger.Errorw("Failed to claim due jobs",
			"worker", workerID, "error", err)
		return
	}

	for _, job := range jobs {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			return
		}
		wp.executeJob(job)
	}
}

// executeJob runs one claimed job through its handler and applies the
// retry policy on failure. Every invocation, including retries, gets
// an audit row.
func (wp *WorkerPool) executeJob(job *Job) {
	start := time.Now()
	execErr := wp.registry.Execute(wp.ctx, job)
	completed := time.Now()

	exec := &Execution{
		JobID:       job.ID,
		Attempt:     job.RetryCount,
		StartedAt:   start,
		CompletedAt: &completed,
		DurationMS:  completed.Sub(start).Milliseconds(),
	}

	if execErr == nil {
		exec.Status = JobStatusCompleted
		if err := wp.store.MarkCompleted(wp.ctx, job.ID); err != nil {
			wp.logger.Errorw("Failed to mark job completed",
				"job_id", job.ID, "error", err)
		}
		wp.recordExecution(exec)
		wp.logger.Infow("Job completed",
			"job_id", job.ID,
			"space", job.Space,
			"type", job.Type,
			"duration_ms", exec.DurationMS)
		return
	}

	exec.Error = execErr.Error()

	if job.RetryCount < job.MaxRetries {
		delay := RetryDelay(job.RetryCount)
		nextRun := completed.Add(delay)
		exec.Status = JobStatusQueued
		if err := wp.store.MarkForRetry(wp.ctx, job.ID, execErr, nextRun); err != nil {
			wp.logger.Errorw("Failed to mark job for retry",
				"job_id", job.ID, "error", err)
		}
		wp.recordExecution(exec)
		wp.logger.Warnw("Job failed, retrying",
			"job_id", job.ID,
			"space", job.Space,
			"type", job.Type,
			"attempt", job.RetryCount+1,
			"max_retries", job.MaxRetries,
			"retry_in", delay,
			"error", execErr)
		return
	}

	exec.Status = JobStatusFailed
	if err := wp.store.MarkFailed(wp.ctx, job.ID, execErr); err != nil {
		wp.logger.Errorw("Failed to mark job failed",
			"job_id", job.ID, "error", err)
	}
	wp.recordExecution(exec)
	wp.logger.Errorw("Job permanently failed",
		"job_id", job.ID,
		"space", job.Space,
		"type", job.Type,
		"attempts", job.RetryCount+1,
		"error", execErr)
	if wp.notifier != nil {
		wp.notifier.JobFailed(wp.ctx, job, execErr)
	}
}

func (wp *WorkerPool) recordExecution(exec *Execution) {
	if err := wp.store.RecordExecution(wp.ctx, exec); err != nil {
		wp.logger.Errorw("Failed to record job execution",
			"job_id", exec.JobID, "error", err)
	}
}

// stallWatcher periodically flags jobs stuck in running state. Stalled
// jobs are surfaced to the operator, never auto-retried.
func (wp *WorkerPool) stallWatcher() {
	defer wp.wg.Done()

	interval := wp.config.StallTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			stalled, err := wp.store.MarkStalled(wp.ctx, time.Now(), wp.config.StallTimeout)
			if err != nil {
				wp.logger.Errorw("Stall sweep failed", "error", err)
				continue
			}
			for _, job := range stalled {
				wp.logger.Warnw("Job stalled",
					"job_id", job.ID,
					"space", job.Space,
					"type", job.Type,
					"started_at", job.StartedAt)
				if wp.notifier != nil {
					wp.notifier.JobStalled(wp.ctx, job)
				}
			}
		}
	}
}
