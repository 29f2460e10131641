package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gavelbot/gavel/proposal"
)

func sampleProposals() []*proposal.Proposal {
	return []*proposal.Proposal{
		{
			Hash:                "aaa",
			ProposalID:          "JBP-101",
			Title:               "Renew payouts",
			Status:              proposal.StatusTemperatureCheck,
			DiscussionThreadURL: "https://forum.example/t/101",
		},
		{
			Hash:   "bbb",
			Title:  "Untitled draft",
			Status: proposal.StatusTemperatureCheck,
		},
	}
}

func TestTemperatureCheckRollup(t *testing.T) {
	end := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	msg := TemperatureCheckRollup(sampleProposals(), end)

	assert.Contains(t, msg, "open until Thu Mar 5 00:00 UTC")
	assert.Contains(t, msg, "2 proposals")
	assert.Contains(t, msg, "*JBP-101*: Renew payouts")
	assert.Contains(t, msg, "[discussion](https://forum.example/t/101)")
	assert.Contains(t, msg, "Untitled draft")
}

func TestVoteRollupSingularPlural(t *testing.T) {
	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	one := VoteRollup(sampleProposals()[:1], end)
	assert.Contains(t, one, "1 proposal up for vote")
	assert.NotContains(t, one, "1 proposals")

	two := VoteRollup(sampleProposals(), end)
	assert.Contains(t, two, "2 proposals up for vote")
}

func TestVoteResultsRollup(t *testing.T) {
	approved := &proposal.Proposal{
		ProposalID: "JBP-101",
		Title:      "Renew payouts",
		Status:     proposal.StatusApproved,
		VoteResults: &proposal.VoteResults{
			Choices: []string{"For", "Against"},
			Scores:  map[string]float64{"For": 120, "Against": 10},
		},
	}
	rejected := &proposal.Proposal{
		ProposalID: "JBP-102",
		Title:      "Increase budget",
		Status:     proposal.StatusCancelled,
	}

	msg := VoteResultsRollup([]*proposal.Proposal{approved, rejected})
	assert.Contains(t, msg, "✅ approved")
	assert.Contains(t, msg, "(120 For / 10 Against)")
	assert.Contains(t, msg, "❌ rejected")
}

func TestPollResults(t *testing.T) {
	p := &proposal.Proposal{
		ProposalID:          "JBP-101",
		Title:               "Renew payouts",
		TemperatureCheckYes: 12,
		TemperatureCheckNo:  3,
	}
	assert.Equal(t,
		"Temperature check for JBP-101: Renew payouts passed: 12 yes, 3 no.",
		PollResults(p, true))
	assert.Contains(t, PollResults(p, false), "did not pass")
}

func TestDailyAlert(t *testing.T) {
	end := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	msg := DailyAlert("Juicebox", 41, 2, "Temperature Check", end)
	assert.Equal(t,
		"Juicebox governance cycle 41, day 2. Current stage: Temperature Check, ends Thu Mar 5 00:00 UTC.",
		msg)
}

func TestAlerts(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Contains(t, TemperatureCheckStartAlert("@governance", start), "@governance")
	assert.Contains(t, TemperatureCheckEndAlert("@governance", start), "Last chance")
	assert.Contains(t, VoteEndAlert("@governance", start), "Voting closes")

	failed := JobFailedAlert("juicebox:voteClose:2026-03-09T00:00:00Z", "juicebox", "voteClose", 4, "timeout")
	assert.Contains(t, failed, "permanently failed after 4 attempts")
	assert.Contains(t, failed, "voteClose")

	stalled := JobStalledAlert("id", "juicebox", "voteRollup", start)
	assert.Contains(t, stalled, "stalled")
}
