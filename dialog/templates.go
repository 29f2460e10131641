package dialog

import (
	"fmt"
	"strings"
	"time"

	"github.com/gavelbot/gavel/proposal"
)

// Message templates for every chat surface. Handlers build content
// here and never format strings inline, so the copy stays consistent
// across handlers and easy to test.

const timestampLayout = "Mon Jan 2 15:04 UTC"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func maybePlural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func proposalLine(p *proposal.Proposal) string {
	label := p.Title
	if p.ProposalID != "" {
		label = fmt.Sprintf("*%s*: %s", p.ProposalID, p.Title)
	}
	if p.DiscussionThreadURL != "" {
		return fmt.Sprintf("%s - [discussion](%s)", label, p.DiscussionThreadURL)
	}
	return label
}

// TemperatureCheckStartAlert reminds the channel that temperature
// checks open soon.
func TemperatureCheckStartAlert(role string, start time.Time) string {
	return fmt.Sprintf("%s Temperature checks begin %s.", role, formatTime(start))
}

// TemperatureCheckEndAlert reminds the channel that temperature checks
// close soon.
func TemperatureCheckEndAlert(role string, end time.Time) string {
	return fmt.Sprintf("%s Temperature checks close %s. Last chance to cast your vote.", role, formatTime(end))
}

// TemperatureCheckRollup lists every proposal entering temperature
// check and when polls close.
func TemperatureCheckRollup(proposals []*proposal.Proposal, end time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Temperature checks are open until %s*\n", formatTime(end))
	fmt.Fprintf(&b, "%d %s up for temperature check:\n",
		len(proposals), maybePlural("proposal", len(proposals)))
	for _, p := range proposals {
		fmt.Fprintf(&b, "• %s\n", proposalLine(p))
	}
	return b.String()
}

// PollQuestion is the yes/no poll prompt for one proposal.
func PollQuestion(p *proposal.Proposal) string {
	if p.ProposalID != "" {
		return fmt.Sprintf("%s: %s", p.ProposalID, p.Title)
	}
	return p.Title
}

// VoteRollup lists every proposal up for vote and when voting closes.
func VoteRollup(proposals []*proposal.Proposal, end time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Voting is open until %s*\n", formatTime(end))
	fmt.Fprintf(&b, "%d %s up for vote:\n",
		len(proposals), maybePlural("proposal", len(proposals)))
	for _, p := range proposals {
		line := proposalLine(p)
		if p.VoteURL != "" {
			line += fmt.Sprintf(" | [vote](%s)", p.VoteURL)
		}
		fmt.Fprintf(&b, "• %s\n", line)
	}
	return b.String()
}

// VoteQuorumAlert lists proposals still under quorum near the end of
// the voting window.
func VoteQuorumAlert(role string, proposals []*proposal.Proposal, quorum float64, end time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%d %s under the quorum of %.0f* with voting closing %s:\n",
		role, len(proposals), maybePlural("proposal", len(proposals)), quorum, formatTime(end))
	for _, p := range proposals {
		line := proposalLine(p)
		if p.VoteURL != "" {
			line += fmt.Sprintf(" | [vote](%s)", p.VoteURL)
		}
		fmt.Fprintf(&b, "• %s\n", line)
	}
	return b.String()
}

// VoteEndAlert reminds the channel that voting closes soon.
func VoteEndAlert(role string, end time.Time) string {
	return fmt.Sprintf("%s Voting closes %s. Last chance to cast your vote.", role, formatTime(end))
}

// VoteResultsRollup summarizes the outcome of every proposal resolved
// this cycle.
func VoteResultsRollup(proposals []*proposal.Proposal) string {
	var b strings.Builder
	b.WriteString("*Voting results*\n")
	for _, p := range proposals {
		outcome := "❌ rejected"
		if p.Status == proposal.StatusApproved {
			outcome = "✅ approved"
		}
		line := fmt.Sprintf("• %s - %s", proposalLine(p), outcome)
		if r := p.VoteResults; r != nil && len(r.Choices) >= 2 {
			line += fmt.Sprintf(" (%.0f %s / %.0f %s)",
				r.Scores[r.Choices[0]], r.Choices[0],
				r.Scores[r.Choices[1]], r.Choices[1])
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// PollResults reports one proposal's temperature-check outcome with
// its tallies.
func PollResults(p *proposal.Proposal, passed bool) string {
	outcome := "did not pass"
	if passed {
		outcome = "passed"
	}
	return fmt.Sprintf("Temperature check for %s %s: %d yes, %d no.",
		PollQuestion(p), outcome, p.TemperatureCheckYes, p.TemperatureCheckNo)
}

// DailyAlert is the day-counter reminder posted every day at the
// space's trigger time.
func DailyAlert(displayName string, cycleNumber, dayOfCycle int, stage string, stageEnd time.Time) string {
	return fmt.Sprintf("%s governance cycle %d, day %d. Current stage: %s, ends %s.",
		displayName, cycleNumber, dayOfCycle, stage, formatTime(stageEnd))
}

// JobFailedAlert is posted to the operator channel when a job exhausts
// its retries.
func JobFailedAlert(jobID, space, jobType string, attempts int, jobErr string) string {
	return fmt.Sprintf("⚠️ Job `%s` permanently failed after %d attempts.\nspace: %s\ntype: %s\nerror: %s",
		jobID, attempts, space, jobType, jobErr)
}

// JobStalledAlert is posted to the operator channel when stall
// detection flags a job.
func JobStalledAlert(jobID, space, jobType string, startedAt time.Time) string {
	return fmt.Sprintf("⚠️ Job `%s` appears stalled (running since %s).\nspace: %s\ntype: %s\nInspect and requeue manually.",
		jobID, formatTime(startedAt), space, jobType)
}
