package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gavelbot/gavel/dialog"
	gaveltest "github.com/gavelbot/gavel/internal/testing"
	"github.com/gavelbot/gavel/proposal"
	"github.com/gavelbot/gavel/queue"
	"github.com/gavelbot/gavel/space"
	"github.com/gavelbot/gavel/vote"
)

// fakeDialog is an in-memory chat platform shared across invocations
// through fakeDialogState, while each factory call hands out a fresh
// session the way the real factory does.
type fakeDialogState struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]string // messageID -> content
	polls    map[string][2]int // messageID -> yes/no tallies
	sendErrs map[string]error  // content substring -> error
	pollErrs map[string]error  // question substring -> error
	loginErr error
	logins   int
	logouts  int
}

func newFakeDialogState() *fakeDialogState {
	return &fakeDialogState{
		messages: make(map[string]string),
		polls:    make(map[string][2]int),
		sendErrs: make(map[string]error),
		pollErrs: make(map[string]error),
	}
}

func (s *fakeDialogState) factory() dialog.Factory {
	return func() dialog.Handler { return &fakeDialog{state: s} }
}

func (s *fakeDialogState) setPollVotes(messageID string, yes, no int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[messageID] = [2]int{yes, no}
}

func (s *fakeDialogState) sentContaining(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, content := range s.messages {
		if strings.Contains(content, substr) {
			n++
		}
	}
	return n
}

type fakeDialog struct {
	state    *fakeDialogState
	loggedIn bool
}

func (f *fakeDialog) Login(ctx context.Context) error {
	if f.state.loginErr != nil {
		return f.state.loginErr
	}
	f.state.mu.Lock()
	f.state.logins++
	f.state.mu.Unlock()
	f.loggedIn = true
	return nil
}

func (f *fakeDialog) Logout(ctx context.Context) error {
	f.state.mu.Lock()
	f.state.logouts++
	f.state.mu.Unlock()
	f.loggedIn = false
	return nil
}

func (f *fakeDialog) SendMessage(ctx context.Context, channel, content string) (string, error) {
	if !f.loggedIn {
		return "", fmt.Errorf("not logged in")
	}
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	for substr, err := range f.state.sendErrs {
		if strings.Contains(content, substr) {
			return "", err
		}
	}
	f.state.nextID++
	id := fmt.Sprintf("msg-%d", f.state.nextID)
	f.state.messages[id] = content
	return id, nil
}

func (f *fakeDialog) DeleteMessage(ctx context.Context, channel, messageID string) error {
	if !f.loggedIn {
		return fmt.Errorf("not logged in")
	}
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	delete(f.state.messages, messageID)
	return nil
}

func (f *fakeDialog) SendPoll(ctx context.Context, channel, question string) (string, error) {
	if !f.loggedIn {
		return "", fmt.Errorf("not logged in")
	}
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	for substr, err := range f.state.pollErrs {
		if strings.Contains(question, substr) {
			return "", err
		}
	}
	f.state.nextID++
	id := fmt.Sprintf("poll-%d", f.state.nextID)
	f.state.messages[id] = question
	f.state.polls[id] = [2]int{0, 0}
	return id, nil
}

func (f *fakeDialog) ClosePoll(ctx context.Context, channel, messageID string) (int, int, error) {
	if !f.loggedIn {
		return 0, 0, fmt.Errorf("not logged in")
	}
	f.state.mu.Lock()
	defer f.state.mu.Unlock()
	tally, ok := f.state.polls[messageID]
	if !ok {
		return 0, 0, fmt.Errorf("poll %s not found", messageID)
	}
	return tally[0], tally[1], nil
}

// fakeVotes is an in-memory vote platform.
type fakeVotes struct {
	mu        sync.Mutex
	nextID    int
	submitted map[string]vote.SubmitRequest // voteID -> request
	results   map[string]*vote.Result
	submitErr map[string]error // title substring -> error
}

func newFakeVotes() *fakeVotes {
	return &fakeVotes{
		submitted: make(map[string]vote.SubmitRequest),
		results:   make(map[string]*vote.Result),
		submitErr: make(map[string]error),
	}
}

func (v *fakeVotes) SubmitProposal(ctx context.Context, req vote.SubmitRequest) (string, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for substr, err := range v.submitErr {
		if strings.Contains(req.Title, substr) {
			return "", "", err
		}
	}
	v.nextID++
	id := fmt.Sprintf("0xvote%d", v.nextID)
	v.submitted[id] = req
	return id, "https://vote.example/p/" + id, nil
}

func (v *fakeVotes) GetResults(ctx context.Context, voteIDs []string) (map[string]*vote.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]*vote.Result)
	for _, id := range voteIDs {
		if r, ok := v.results[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type fixture struct {
	deps   *Deps
	chat   *fakeDialogState
	votes  *fakeVotes
	spaces *space.Store
	props  *proposal.Store
	db     *sql.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := gaveltest.CreateTestDB(t)
	chat := newFakeDialogState()
	votes := newFakeVotes()
	spaces := space.NewStore(conn)
	props := proposal.NewStore(conn)

	deps := &Deps{
		Spaces:    spaces,
		Proposals: props,
		Dialog:    chat.factory(),
		Votes:     votes,
		Logger:    zap.NewNop().Sugar(),
	}
	return &fixture{deps: deps, chat: chat, votes: votes, spaces: spaces, props: props, db: conn}
}

func (f *fixture) putSpace(t *testing.T) *space.Config {
	t.Helper()
	cfg := &space.Config{
		Name:              "juicebox",
		DisplayName:       "Juicebox",
		AutoEnable:        true,
		CycleTriggerTime:  "00:00",
		CycleStageLengths: []int{3, 4, 4, 4},
		CycleAnchor:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentCycle:      1,
		ChatChannel:       "100",
		OperatorChannel:   "200",
		AlertRole:         "@governance",
		Poll:              space.Poll{MinYesVotes: 5, YesNoRatio: 0.6},
		VoteSpace:         "jbdao.eth",
		VoteQuorum:        80,
	}
	require.NoError(t, f.spaces.Put(context.Background(), cfg))
	return cfg
}

func (f *fixture) putProposal(t *testing.T, hash string, status proposal.Status) *proposal.Proposal {
	t.Helper()
	p := &proposal.Proposal{
		Hash:            hash,
		Space:           "juicebox",
		ProposalID:      "JBP-" + hash,
		Title:           "Proposal " + hash,
		Status:          status,
		GovernanceCycle: 1,
	}
	require.NoError(t, f.props.Put(context.Background(), p))
	return p
}

func job(jobType queue.JobType, runAt time.Time, dataDate *time.Time) *queue.Job {
	return queue.NewJob("juicebox", jobType, runAt, dataDate)
}

func TestIncrementCycleMonotonicUnderRedelivery(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	h := &incrementCycleHandler{f.deps}
	trigger := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	j := job(queue.TypeIncrementGovernanceCycle, trigger, nil)

	require.NoError(t, h.Execute(ctx, j))
	require.NoError(t, h.Execute(ctx, j)) // redelivery

	cfg, err := f.spaces.Get(ctx, "juicebox")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.CurrentCycle, "duplicate delivery must not double-increment")

	// The next cycle's trigger increments again.
	require.NoError(t, h.Execute(ctx, job(queue.TypeIncrementGovernanceCycle, trigger.AddDate(0, 0, 15), nil)))
	cfg, err = f.spaces.Get(ctx, "juicebox")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.CurrentCycle)
}

func TestStartAlertGuard(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	h := &startAlertHandler{f.deps}
	j := job(queue.TypeTemperatureCheckStartAlert, start.Add(-time.Hour), &start)

	require.NoError(t, h.Execute(ctx, j))
	require.NoError(t, h.Execute(ctx, j)) // redelivery

	assert.Equal(t, 1, f.chat.sentContaining("Temperature checks begin"),
		"second invocation must be a guard no-op")

	id, err := f.spaces.DialogMessageID(ctx, "juicebox", space.SlotTemperatureCheckStartAlert)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestStartAlertRequiresDataDate(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)

	h := &startAlertHandler{f.deps}
	err := h.Execute(context.Background(), job(queue.TypeTemperatureCheckStartAlert, time.Now(), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data date")
}

func TestDeleteAlertLifecycle(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", space.SlotTemperatureCheckStartAlert, "msg-99"))
	f.chat.messages["msg-99"] = "stale alert"

	h := &deleteAlertHandler{f.deps, queue.TypeDeleteTemperatureCheckStartAlert, space.SlotTemperatureCheckStartAlert}
	j := job(queue.TypeDeleteTemperatureCheckStartAlert, time.Now(), nil)

	require.NoError(t, h.Execute(ctx, j))
	id, err := f.spaces.DialogMessageID(ctx, "juicebox", space.SlotTemperatureCheckStartAlert)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.NotContains(t, f.chat.messages, "msg-99")

	logins := f.chat.logins
	require.NoError(t, h.Execute(ctx, j)) // cleared slot, guard no-op
	assert.Equal(t, logins, f.chat.logins, "guard no-op must not touch chat")
}

func TestTemperatureCheckRollupScenario(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "aaa", proposal.StatusDiscussion)
	end := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	h := &temperatureCheckRollupHandler{f.deps}
	j := job(queue.TypeTemperatureCheckRollup, end.AddDate(0, 0, -3), &end)

	require.NoError(t, h.Execute(ctx, j))

	p, err := f.props.Get(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusTemperatureCheck, p.Status)

	rollupID, err := f.spaces.DialogMessageID(ctx, "juicebox", space.SlotTemperatureCheckRollup)
	require.NoError(t, err)
	assert.NotEmpty(t, rollupID)

	pollID, err := f.spaces.DialogMessageID(ctx, "juicebox", space.PollSlot("aaa"))
	require.NoError(t, err)
	assert.NotEmpty(t, pollID)

	// Immediate redelivery: no proposals left in Discussion, so no
	// second rollup message.
	require.NoError(t, h.Execute(ctx, j))
	assert.Equal(t, 1, f.chat.sentContaining("Temperature checks are open"))
}

func TestTemperatureCheckRollupPollFailureTolerated(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "good", proposal.StatusDiscussion)
	f.putProposal(t, "bad", proposal.StatusDiscussion)
	f.chat.pollErrs["bad"] = fmt.Errorf("poll rejected")

	end := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	h := &temperatureCheckRollupHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeTemperatureCheckRollup, end, &end)))

	// Both proposals still advance; only the poll is missing.
	for _, hash := range []string{"good", "bad"} {
		p, err := f.props.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, proposal.StatusTemperatureCheck, p.Status, hash)
	}
	pollID, err := f.spaces.DialogMessageID(ctx, "juicebox", space.PollSlot("bad"))
	require.NoError(t, err)
	assert.Empty(t, pollID)
}

func TestTemperatureCheckClosePassFailBoundary(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t) // minYesVotes=5, yesNoRatio=0.6
	ctx := context.Background()

	pass := f.putProposal(t, "pass", proposal.StatusTemperatureCheck)
	fail := f.putProposal(t, "fail", proposal.StatusTemperatureCheck)
	zero := f.putProposal(t, "zero", proposal.StatusTemperatureCheck)

	for _, p := range []*proposal.Proposal{pass, fail, zero} {
		require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", space.PollSlot(p.Hash), "poll-"+p.Hash))
		f.chat.polls["poll-"+p.Hash] = [2]int{}
	}
	f.chat.setPollVotes("poll-pass", 5, 3) // 5/8 = 0.625 >= 0.6
	f.chat.setPollVotes("poll-fail", 5, 4) // 5/9 = 0.556 < 0.6
	f.chat.setPollVotes("poll-zero", 0, 0) // zero votes fails, no division error

	h := &temperatureCheckCloseHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeTemperatureCheckClose, time.Now(), nil)))

	expect := map[string]proposal.Status{
		"pass": proposal.StatusVoting,
		"fail": proposal.StatusCancelled,
		"zero": proposal.StatusCancelled,
	}
	for hash, want := range expect {
		p, err := f.props.Get(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, want, p.Status, hash)
	}

	p, err := f.props.Get(ctx, "pass")
	require.NoError(t, err)
	assert.Equal(t, 5, p.TemperatureCheckYes)
	assert.Equal(t, 3, p.TemperatureCheckNo)
}

func TestTemperatureCheckClosePartialFailure(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "pass", proposal.StatusTemperatureCheck)
	f.putProposal(t, "fail", proposal.StatusTemperatureCheck)

	require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", space.PollSlot("pass"), "poll-pass"))
	require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", space.PollSlot("fail"), "poll-fail"))
	f.chat.setPollVotes("poll-pass", 10, 1)
	f.chat.setPollVotes("poll-fail", 1, 10)

	// The results message for the passing proposal fails to send;
	// both proposals must still resolve.
	f.chat.sendErrs["JBP-pass"] = fmt.Errorf("send failed")

	h := &temperatureCheckCloseHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeTemperatureCheckClose, time.Now(), nil)))

	p, err := f.props.Get(ctx, "pass")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusVoting, p.Status)

	p, err = f.props.Get(ctx, "fail")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusCancelled, p.Status)
}

func TestTemperatureCheckCloseUnreadablePollFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "gone", proposal.StatusTemperatureCheck)
	// The slot holds an id with no poll behind it, so ClosePoll errors.
	require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", space.PollSlot("gone"), "poll-gone"))

	h := &temperatureCheckCloseHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeTemperatureCheckClose, time.Now(), nil)))

	p, err := f.props.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusCancelled, p.Status)
	assert.Equal(t, 0, p.TemperatureCheckYes)
	assert.Equal(t, 0, p.TemperatureCheckNo)
}

func TestVoteSetupGuardsAgainstResubmission(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "aaa", proposal.StatusVoting)
	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	h := &voteSetupHandler{f.deps}
	j := job(queue.TypeVoteSetup, end.AddDate(0, 0, -4), &end)

	require.NoError(t, h.Execute(ctx, j))
	require.NoError(t, h.Execute(ctx, j)) // redelivery

	assert.Len(t, f.votes.submitted, 1, "redelivery must not double-submit")

	p, err := f.props.Get(ctx, "aaa")
	require.NoError(t, err)
	assert.NotEmpty(t, p.VoteURL)
}

func TestVoteSetupPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "ok", proposal.StatusVoting)
	f.putProposal(t, "rejected", proposal.StatusVoting)
	f.votes.submitErr["rejected"] = fmt.Errorf("platform rejected")

	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	h := &voteSetupHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeVoteSetup, end, &end)))

	ok, err := f.props.Get(ctx, "ok")
	require.NoError(t, err)
	assert.NotEmpty(t, ok.VoteURL)

	rejected, err := f.props.Get(ctx, "rejected")
	require.NoError(t, err)
	assert.Empty(t, rejected.VoteURL)
}

func TestVoteRollupGuard(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	p := f.putProposal(t, "aaa", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, p.Hash, "https://vote.example/p/0xvote1"))

	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	h := &voteRollupHandler{f.deps}
	j := job(queue.TypeVoteRollup, end.AddDate(0, 0, -4), &end)

	require.NoError(t, h.Execute(ctx, j))
	require.NoError(t, h.Execute(ctx, j))
	assert.Equal(t, 1, f.chat.sentContaining("Voting is open"))
}

func TestVoteRollupPostsEveryCycle(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	p := f.putProposal(t, "aaa", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, p.Hash, "https://vote.example/p/0xvote1"))

	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	rollup := &voteRollupHandler{f.deps}
	require.NoError(t, rollup.Execute(ctx, job(queue.TypeVoteRollup, end.AddDate(0, 0, -4), &end)))
	assert.Equal(t, 1, f.chat.sentContaining("Voting is open"))

	// First cycle resolves and the boundary job advances the counter.
	require.NoError(t, f.props.UpdateStatuses(ctx, map[string]proposal.Status{"aaa": proposal.StatusApproved}))
	inc := &incrementCycleHandler{f.deps}
	boundary := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	require.NoError(t, inc.Execute(ctx, job(queue.TypeIncrementGovernanceCycle, boundary, nil)))

	// Next cycle's vote window with a fresh proposal posts its own rollup.
	p2 := f.putProposal(t, "bbb", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, p2.Hash, "https://vote.example/p/0xvote2"))
	end2 := end.AddDate(0, 0, 15)
	require.NoError(t, rollup.Execute(ctx, job(queue.TypeVoteRollup, end2.AddDate(0, 0, -4), &end2)))

	assert.Equal(t, 2, f.chat.sentContaining("Voting is open"),
		"each cycle's vote window gets its own rollup")
}

func TestIncrementCycleClearsPerCycleSlots(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	perCycle := []space.Slot{space.SlotVoteRollup, space.SlotVoteQuorumAlert, space.SlotVoteResultsRollup}
	for _, slot := range perCycle {
		require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", slot, "msg-"+string(slot)))
	}

	inc := &incrementCycleHandler{f.deps}
	boundary := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	j := job(queue.TypeIncrementGovernanceCycle, boundary, nil)
	require.NoError(t, inc.Execute(ctx, j))

	for _, slot := range perCycle {
		id, err := f.spaces.DialogMessageID(ctx, "juicebox", slot)
		require.NoError(t, err)
		assert.Empty(t, id, string(slot))
	}

	// A stale redelivery of the boundary job must not wipe slots the
	// new cycle has already filled.
	require.NoError(t, f.spaces.SetDialogMessageID(ctx, "juicebox", space.SlotVoteRollup, "msg-new"))
	require.NoError(t, inc.Execute(ctx, j))
	id, err := f.spaces.DialogMessageID(ctx, "juicebox", space.SlotVoteRollup)
	require.NoError(t, err)
	assert.Equal(t, "msg-new", id)
}

func TestVoteQuorumAlertOnlyUnderQuorum(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t) // quorum 80
	ctx := context.Background()

	met := f.putProposal(t, "met", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, met.Hash, "https://vote.example/p/0xmet"))
	under := f.putProposal(t, "under", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, under.Hash, "https://vote.example/p/0xunder"))

	f.votes.results["0xmet"] = &vote.Result{
		VoteID: "0xmet", Choices: []string{"For", "Against"},
		Scores: map[string]float64{"For": 90, "Against": 10}, ScoresTotal: 100,
	}
	f.votes.results["0xunder"] = &vote.Result{
		VoteID: "0xunder", Choices: []string{"For", "Against"},
		Scores: map[string]float64{"For": 30, "Against": 10}, ScoresTotal: 40,
	}

	end := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	h := &voteQuorumAlertHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeVoteQuorumAlert, end.Add(-2*time.Hour), &end)))

	assert.Equal(t, 1, f.chat.sentContaining("under the quorum"))
	assert.Equal(t, 1, f.chat.sentContaining("JBP-under"))
	assert.Equal(t, 0, f.chat.sentContaining("JBP-met"))
}

func TestVoteCloseScenario(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t) // quorum 80
	ctx := context.Background()

	approved := f.putProposal(t, "approved", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, approved.Hash, "https://vote.example/p/0xapproved"))
	rejected := f.putProposal(t, "rejected", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, rejected.Hash, "https://vote.example/p/0xrejected"))
	open := f.putProposal(t, "open", proposal.StatusVoting)
	require.NoError(t, f.props.SetVoteURL(ctx, open.Hash, "https://vote.example/p/0xopen"))

	f.votes.results["0xapproved"] = &vote.Result{
		VoteID: "0xapproved", Closed: true, Choices: []string{"For", "Against"},
		Scores: map[string]float64{"For": 120, "Against": 10}, ScoresTotal: 130, TotalVotes: 31,
	}
	f.votes.results["0xrejected"] = &vote.Result{
		VoteID: "0xrejected", Closed: true, Choices: []string{"For", "Against"},
		Scores: map[string]float64{"For": 10, "Against": 120}, ScoresTotal: 130, TotalVotes: 20,
	}
	f.votes.results["0xopen"] = &vote.Result{
		VoteID: "0xopen", Closed: false, Choices: []string{"For", "Against"},
		Scores: map[string]float64{"For": 5, "Against": 1}, ScoresTotal: 6,
	}

	h := &voteCloseHandler{f.deps}
	require.NoError(t, h.Execute(ctx, job(queue.TypeVoteClose, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), nil)))

	p, err := f.props.Get(ctx, "approved")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusApproved, p.Status)
	require.NotNil(t, p.VoteResults)
	assert.True(t, p.VoteResults.Passed)

	p, err = f.props.Get(ctx, "rejected")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusCancelled, p.Status)

	// Still-open votes wait for the next close attempt.
	p, err = f.props.Get(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, proposal.StatusVoting, p.Status)
}

func TestVoteResultsRollup(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	p := f.putProposal(t, "done", proposal.StatusApproved)
	require.NoError(t, f.props.SetVoteResults(ctx, p.Hash, &proposal.VoteResults{
		VoteID:  "0xdone",
		Choices: []string{"For", "Against"},
		Scores:  map[string]float64{"For": 120, "Against": 10},
		Passed:  true,
	}))

	h := &voteResultsRollupHandler{f.deps}
	j := job(queue.TypeVoteResultsRollup, time.Now(), nil)
	require.NoError(t, h.Execute(ctx, j))
	require.NoError(t, h.Execute(ctx, j))
	assert.Equal(t, 1, f.chat.sentContaining("Voting results"))
}

func TestDailyAlertReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	h := &dailyAlertHandler{f.deps}
	// Anchor 2026-01-01, stages 3/4/4/4. Day 2 falls in Temperature Check.
	runAt := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.Execute(ctx, job(queue.TypeSendDailyAlert, runAt, nil)))

	first, err := f.spaces.DialogMessageID(ctx, "juicebox", space.SlotDailyAlert)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Contains(t, f.chat.messages[first], "day 2")
	assert.Contains(t, f.chat.messages[first], "Temperature Check")

	require.NoError(t, h.Execute(ctx, job(queue.TypeSendDailyAlert, runAt.AddDate(0, 0, 1), nil)))
	second, err := f.spaces.DialogMessageID(ctx, "juicebox", space.SlotDailyAlert)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.NotContains(t, f.chat.messages, first, "previous daily alert removed")
}

func TestHandlerFailsWholeJobOnLoginError(t *testing.T) {
	f := newFixture(t)
	f.putSpace(t)
	ctx := context.Background()

	f.putProposal(t, "aaa", proposal.StatusDiscussion)
	f.chat.loginErr = fmt.Errorf("gateway unavailable")

	end := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	h := &temperatureCheckRollupHandler{f.deps}
	err := h.Execute(ctx, job(queue.TypeTemperatureCheckRollup, end, &end))
	require.Error(t, err)

	// Nothing committed: the proposal stays in Discussion for the retry.
	p, perr := f.props.Get(ctx, "aaa")
	require.NoError(t, perr)
	assert.Equal(t, proposal.StatusDiscussion, p.Status)
}

func TestRegisterCoversAllJobTypes(t *testing.T) {
	f := newFixture(t)
	registry := queue.NewHandlerRegistry()
	Register(registry, f.deps)

	all := []queue.JobType{
		queue.TypeIncrementGovernanceCycle,
		queue.TypeTemperatureCheckStartAlert,
		queue.TypeDeleteTemperatureCheckStartAlert,
		queue.TypeTemperatureCheckRollup,
		queue.TypeTemperatureCheckEndAlert,
		queue.TypeDeleteTemperatureCheckEndAlert,
		queue.TypeTemperatureCheckClose,
		queue.TypeVoteSetup,
		queue.TypeVoteRollup,
		queue.TypeVoteQuorumAlert,
		queue.TypeVoteEndAlert,
		queue.TypeDeleteVoteEndAlert,
		queue.TypeVoteClose,
		queue.TypeVoteResultsRollup,
		queue.TypeSendDailyAlert,
	}
	for _, jobType := range all {
		assert.True(t, registry.Has(jobType), string(jobType))
	}
	assert.Len(t, registry.Types(), len(all))
}
