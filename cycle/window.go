// Package cycle resolves a space's recurring governance calendar into
// concrete stage windows.
package cycle

import (
	"time"

	"github.com/gavelbot/gavel/errors"
)

// StageTitle names one window of a governance cycle.
type StageTitle string

const (
	StageTemperatureCheck StageTitle = "Temperature Check"
	StageSnapshotVote     StageTitle = "Snapshot Vote"
	StageExecution        StageTitle = "Execution"
	StageDelay            StageTitle = "Delay"
)

// ParseStageTitle validates a stage title from configuration.
// Unknown titles are a configuration error, never silently skipped.
func ParseStageTitle(s string) (StageTitle, error) {
	switch StageTitle(s) {
	case StageTemperatureCheck, StageSnapshotVote, StageExecution, StageDelay:
		return StageTitle(s), nil
	default:
		return "", errors.NewConfigError("unknown stage title %q", s)
	}
}

// StageWindow is a named time interval within a governance cycle.
// Windows are immutable once produced and ordered by start time.
type StageWindow struct {
	Title StageTitle
	Start time.Time
	End   time.Time
}

// Duration returns the window length.
func (w StageWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window. Start is
// inclusive, End exclusive, so consecutive windows never both claim
// the same instant.
func (w StageWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// DefaultTemplate is the canonical stage order of one governance cycle.
func DefaultTemplate() []string {
	return []string{
		string(StageTemperatureCheck),
		string(StageSnapshotVote),
		string(StageExecution),
		string(StageDelay),
	}
}
