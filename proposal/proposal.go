// Package proposal models governance proposals and their lifecycle.
package proposal

import (
	"strings"
	"time"
)

// VoteResults holds the final tally fetched from the vote platform
// after a vote closes. Stored as JSON alongside the proposal.
type VoteResults struct {
	VoteID       string             `json:"voteId"`
	Choices      []string           `json:"choices"`
	Scores       map[string]float64 `json:"scores"`
	TotalVotes   int                `json:"totalVotes"`
	QuorumMet    bool               `json:"quorumMet"`
	Passed       bool               `json:"passed"`
	ClosedAt     time.Time          `json:"closedAt"`
}

// Proposal is one governance proposal within a space. Status changes
// are applied through the transition table in status.go.
type Proposal struct {
	Hash                string
	Space               string
	ProposalID          string
	Title               string
	Body                string
	Status              Status
	GovernanceCycle     int
	Author              string
	DiscussionThreadURL string
	VoteURL             string
	TemperatureCheckYes int
	TemperatureCheckNo  int
	VoteResults         *VoteResults
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// VoteID returns the external vote id, the final segment of the vote
// URL. Empty when the proposal has not been submitted to the vote
// platform.
func (p *Proposal) VoteID() string {
	if p.VoteURL == "" {
		return ""
	}
	if i := strings.LastIndex(p.VoteURL, "/"); i >= 0 {
		return p.VoteURL[i+1:]
	}
	return p.VoteURL
}

// PassesTemperatureCheck applies the temperature-check pass rule: the
// yes count must meet the minimum and the yes ratio must meet the
// threshold. Zero total votes always fails.
func (p *Proposal) PassesTemperatureCheck(minYesVotes int, yesNoRatio float64) bool {
	yes, no := p.TemperatureCheckYes, p.TemperatureCheckNo
	total := yes + no
	if total == 0 {
		return false
	}
	return yes >= minYesVotes && float64(yes)/float64(total) >= yesNoRatio
}
