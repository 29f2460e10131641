package proposal

import (
	"github.com/gavelbot/gavel/errors"
)

// Status is the closed set of proposal lifecycle states. All status
// changes go through Transition so the state machine stays in one
// place.
type Status string

const (
	StatusDraft            Status = "Draft"
	StatusPrivate          Status = "Private"
	StatusDiscussion       Status = "Discussion"
	StatusTemperatureCheck Status = "Temperature Check"
	StatusVoting           Status = "Voting"
	StatusApproved         Status = "Approved"
	StatusCancelled        Status = "Cancelled"
	StatusArchived         Status = "Archived"
)

// transitions maps each state to the states reachable from it. Archived
// is reachable from every pre-terminal state and is handled in
// CanTransition rather than listed per-row.
var transitions = map[Status][]Status{
	StatusDraft:            {StatusDiscussion},
	StatusPrivate:          {StatusDiscussion},
	StatusDiscussion:       {StatusTemperatureCheck},
	StatusTemperatureCheck: {StatusVoting, StatusCancelled},
	StatusVoting:           {StatusApproved, StatusCancelled},
	StatusApproved:         {},
	StatusCancelled:        {},
	StatusArchived:         {},
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusCancelled || s == StatusArchived
}

// ParseStatus validates a stored status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := transitions[s]; !ok {
		return "", errors.Newf("unknown proposal status %q", raw)
	}
	return s, nil
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	if to == StatusArchived {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns to if the move is legal, or ErrInvalidTransition
// wrapped with both states otherwise.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, errors.Wrapf(errors.ErrInvalidTransition,
			"%s -> %s", from, to)
	}
	return to, nil
}
