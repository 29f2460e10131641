// Package space holds per-space governance configuration and cycle state.
package space

import (
	"time"
)

// Slot identifies one persisted chat-message bookkeeping entry. Each
// stage handler that posts a trackable message owns exactly one slot.
type Slot string

const (
	SlotTemperatureCheckStartAlert Slot = "temperatureCheckStartAlert"
	SlotTemperatureCheckEndAlert   Slot = "temperatureCheckEndAlert"
	SlotTemperatureCheckRollup     Slot = "temperatureCheckRollup"
	SlotVoteRollup                 Slot = "voteRollup"
	SlotVoteEndAlert               Slot = "voteEndAlert"
	SlotVoteQuorumAlert            Slot = "voteQuorumAlert"
	SlotVoteResultsRollup          Slot = "voteResultsRollup"
	SlotDailyAlert                 Slot = "dailyAlert"
)

// PollSlot returns the bookkeeping slot for one proposal's
// temperature-check poll message.
func PollSlot(hash string) Slot {
	return Slot("poll:" + hash)
}

// Poll holds the temperature-check pass thresholds for a space.
type Poll struct {
	MinYesVotes int
	YesNoRatio  float64
}

// Config is one space's governance configuration, read from the
// configuration store. CurrentCycle and LastCycleTrigger are mutated
// only by the incrementGovernanceCycle handler.
type Config struct {
	Name              string
	DisplayName       string
	AutoEnable        bool
	CycleTriggerTime  string // "HH:MM", UTC
	CycleStageLengths []int  // days per stage, template order
	CycleAnchor       time.Time
	CurrentCycle      int
	LastCycleTrigger  *time.Time
	ChatChannel       string
	OperatorChannel   string
	AlertRole         string
	Poll              Poll
	VoteSpace         string
	VoteQuorum        float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
