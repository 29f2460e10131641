// Package queue provides a durable delayed job queue backed by SQLite.
//
// Jobs carry deterministic ids derived from space, job type and run
// time, so re-scheduling the same logical job upserts the existing row
// instead of creating a duplicate delivery.
package queue

import (
	"fmt"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusStalled   JobStatus = "stalled"
)

// IsValidStatus returns true if the status string is a valid JobStatus.
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusStalled:
		return true
	default:
		return false
	}
}

// JobType identifies which stage handler executes a job.
type JobType string

const (
	TypeIncrementGovernanceCycle         JobType = "incrementGovernanceCycle"
	TypeTemperatureCheckStartAlert       JobType = "temperatureCheckStartAlert"
	TypeDeleteTemperatureCheckStartAlert JobType = "deleteTemperatureCheckStartAlert"
	TypeTemperatureCheckRollup           JobType = "temperatureCheckRollup"
	TypeTemperatureCheckEndAlert         JobType = "temperatureCheckEndAlert"
	TypeDeleteTemperatureCheckEndAlert   JobType = "deleteTemperatureCheckEndAlert"
	TypeTemperatureCheckClose            JobType = "temperatureCheckClose"
	TypeVoteSetup                        JobType = "voteSetup"
	TypeVoteRollup                       JobType = "voteRollup"
	TypeVoteQuorumAlert                  JobType = "voteQuorumAlert"
	TypeVoteEndAlert                     JobType = "voteEndAlert"
	TypeDeleteVoteEndAlert               JobType = "deleteVoteEndAlert"
	TypeVoteClose                        JobType = "voteClose"
	TypeVoteResultsRollup                JobType = "voteResultsRollup"
	TypeSendDailyAlert                   JobType = "sendDailyAlert"
)

// MaxRetries is the number of retry attempts before a job is marked
// permanently failed.
const MaxRetries = 3

// RetryBaseDelay is the backoff for the first retry; each further
// retry doubles it.
const RetryBaseDelay = time.Second

// Job is one scheduled stage-handler invocation for a space.
type Job struct {
	ID          string
	Space       string
	Type        JobType
	RunAt       time.Time
	DataDate    *time.Time // window boundary the handler operates on
	Status      JobStatus
	RetryCount  int
	MaxRetries  int
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// FormatJobID builds the deterministic job id "{space}:{type}:{isoTimestamp}".
// Two schedule passes over the same window produce the same id, which
// is what makes re-scheduling idempotent.
func FormatJobID(space string, jobType JobType, runAt time.Time) string {
	return fmt.Sprintf("%s:%s:%s", space, jobType, runAt.UTC().Format(time.RFC3339))
}

// NewJob creates a queued job with its deterministic id.
func NewJob(space string, jobType JobType, runAt time.Time, dataDate *time.Time) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         FormatJobID(space, jobType, runAt),
		Space:      space,
		Type:       jobType,
		RunAt:      runAt.UTC(),
		DataDate:   dataDate,
		Status:     JobStatusQueued,
		MaxRetries: MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// RetryDelay returns the exponential backoff delay for the given
// retry attempt (0-based): 1s, 2s, 4s, ...
func RetryDelay(retryCount int) time.Duration {
	return RetryBaseDelay << retryCount
}
