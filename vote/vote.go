// Package vote integrates with the external off-chain vote platform.
package vote

import (
	"context"
	"time"
)

// SubmitRequest carries one proposal onto the vote platform.
type SubmitRequest struct {
	Space    string // vote-platform space id, e.g. "jbdao.eth"
	Title    string
	Body     string
	Choices  []string // defaults to For/Against/Abstain when empty
	Start    time.Time
	End      time.Time
	Snapshot string // optional block reference
}

// Result is the tally for one external vote. Closed reports whether
// the vote has ended; scores are only final once Closed is true.
type Result struct {
	VoteID      string
	Closed      bool
	Choices     []string
	Scores      map[string]float64
	TotalVotes  int
	ScoresTotal float64
}

// Passed applies the platform's pass rule to a closed result: the
// first choice must lead the second and the total score must meet
// quorum. An open vote never passes.
func (r *Result) Passed(quorum float64) bool {
	if r == nil || !r.Closed || len(r.Choices) < 2 {
		return false
	}
	if r.ScoresTotal < quorum {
		return false
	}
	return r.Scores[r.Choices[0]] > r.Scores[r.Choices[1]]
}

// QuorumMet reports whether the total score reached quorum.
func (r *Result) QuorumMet(quorum float64) bool {
	return r != nil && r.ScoresTotal >= quorum
}

// Client is the narrow contract the stage handlers need from the vote
// platform.
type Client interface {
	// SubmitProposal creates a vote and returns its id and public URL.
	SubmitProposal(ctx context.Context, req SubmitRequest) (voteID, voteURL string, err error)

	// GetResults fetches current tallies for a set of votes, keyed by
	// vote id. Unknown ids are absent from the map, not an error.
	GetResults(ctx context.Context, voteIDs []string) (map[string]*Result, error)
}
