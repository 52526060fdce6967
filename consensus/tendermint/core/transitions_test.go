package core_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autonity/tendermint-sim/consensus/tendermint/core"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

func hasBroadcast(outputs []message.Output, want message.Message) bool {
	for _, o := range outputs {
		if o.Kind == message.BroadcastOutput && o.Msg == want {
			return true
		}
	}
	return false
}

// Line 22: Propose at propose stage.
func TestProcessProposeLine22VotesForValue(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	proposal := message.NewPropose("p1", 0, "v0", message.NoRound)
	res := core.ReceiveMessage(cfg, s, proposal)

	require.Equal(t, message.PreVote, res.State.Stage)
	require.True(t, res.State.AfterPrevoteForFirstTime)
	require.True(t, hasBroadcast(res.Outputs, message.NewVoteForValue(message.PreVoteKind, "p2", 0, message.ID("v0"))))
}

func TestProcessProposeLine22VotesForNilWhenInvalid(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	// v2's round (3) has a faulty proposer, so v2 is not a valid value.
	proposal := message.NewPropose("p1", 0, "v2", message.NoRound)
	res := core.ReceiveMessage(cfg, s, proposal)

	require.True(t, hasBroadcast(res.Outputs, message.NewVoteForNil(message.PreVoteKind, "p2", 0)))
}

func TestProcessProposeLine22VotesForNilWhenLockedOnDifferentValue(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")
	locked := message.Value("v1")
	s.LockedValue = &locked
	s.LockedRound = 0

	proposal := message.NewPropose("p1", 0, "v0", message.NoRound)
	res := core.ReceiveMessage(cfg, s, proposal)

	require.True(t, hasBroadcast(res.Outputs, message.NewVoteForNil(message.PreVoteKind, "p2", 0)))
}

func TestProcessProposeIgnoresUnexpectedSource(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	proposal := message.NewPropose("p4", 0, "v0", message.NoRound) // p4 is not PROPOSER(0)
	res := core.ReceiveMessage(cfg, s, proposal)

	require.Equal(t, message.Propose, res.State.Stage)
	require.Empty(t, res.Outputs)
}

// Lines 34 and 36: a prevote completing both quorums in the same step
// lets line 36 advance to PreCommit.
func TestProcessPrevoteLine36FiresBeforeLine34Consumes(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p1")

	propose := core.ReceiveMessage(cfg, s, message.NewPropose("p1", 0, "v0", message.NoRound))
	s = propose.State

	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreVoteKind, "p1", 0, message.ID("v0"))).State
	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreVoteKind, "p2", 0, message.ID("v0"))).State
	res := core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreVoteKind, "p4", 0, message.ID("v0")))

	require.Equal(t, message.PreCommit, res.State.Stage)
	require.NotNil(t, res.State.LockedValue)
	require.Equal(t, message.Value("v0"), *res.State.LockedValue)
	require.Equal(t, message.Round(0), res.State.LockedRound)
	require.True(t, hasBroadcast(res.Outputs, message.NewVoteForValue(message.PreCommitKind, "p1", 0, message.ID("v0"))))
}

// Line 47 and 49: precommit quorum arms a timeout, and a subsequent
// precommit-for-id quorum with a valid proposal yields a decision.
func TestProcessPrecommitDecision(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p1")
	s = core.ReceiveMessage(cfg, s, message.NewPropose("p1", 0, "v0", message.NoRound)).State
	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreVoteKind, "p1", 0, message.ID("v0"))).State
	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreVoteKind, "p2", 0, message.ID("v0"))).State
	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreVoteKind, "p4", 0, message.ID("v0"))).State
	require.Equal(t, message.PreCommit, s.Stage)

	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreCommitKind, "p1", 0, message.ID("v0"))).State
	s = core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreCommitKind, "p2", 0, message.ID("v0"))).State
	res := core.ReceiveMessage(cfg, s, message.NewVoteForValue(message.PreCommitKind, "p4", 0, message.ID("v0")))

	require.NotNil(t, res.State.Decision)
	require.Equal(t, message.Value("v0"), *res.State.Decision)
	require.Equal(t, message.Decided, res.State.Stage)
}

func TestFireProposeTimeoutVotesNil(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	res := core.FireTimeoutEvent(cfg, s, message.TimeoutEvent{Kind: message.ProposeTimeout, Round: 0})
	require.Equal(t, message.PreVote, res.State.Stage)
	require.True(t, hasBroadcast(res.Outputs, message.NewVoteForNil(message.PreVoteKind, "p2", 0)))
}

func TestFireProposeTimeoutIgnoredForWrongRound(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	res := core.FireTimeoutEvent(cfg, s, message.TimeoutEvent{Kind: message.ProposeTimeout, Round: 1})
	require.Equal(t, message.Propose, res.State.Stage)
	require.Empty(t, res.Outputs)
}

func TestFirePreCommitTimeoutStartsNextRound(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	res := core.FireTimeoutEvent(cfg, s, message.TimeoutEvent{Kind: message.PreCommitTimeout, Round: 0})
	require.Equal(t, message.Round(1), res.State.Round)
	require.Equal(t, message.Propose, res.State.Stage)
}

// Line 44 is defined but deliberately never wired into processPrevote -
// see DESIGN.md. This test exercises it directly as a standalone unit so
// the preserved-but-unused behavior stays covered.
func TestPrevoteQuorumForNilAtPrevoteStage(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")
	s.Stage = message.PreVote
	s.ReceivedPrevotes.Insert(message.NewVoteForNil(message.PreVoteKind, "p1", 0))
	s.ReceivedPrevotes.Insert(message.NewVoteForNil(message.PreVoteKind, "p2", 0))
	s.ReceivedPrevotes.Insert(message.NewVoteForNil(message.PreVoteKind, "p4", 0))

	res := core.PrevoteQuorumForNilAtPrevoteStage(cfg, s, 0)
	require.Equal(t, message.PreCommit, res.State.Stage)
	require.True(t, hasBroadcast(res.Outputs, message.NewVoteForNil(message.PreCommitKind, "p2", 0)))
}

func TestDeliveringSameMessageTwiceIsIdempotent(t *testing.T) {
	cfg := testConfig()
	s := core.InitLocalState("p2")

	m := message.NewPropose("p1", 0, "v0", message.NoRound)
	once := core.ReceiveMessage(cfg, s, m)
	twice := core.ReceiveMessage(cfg, once.State, m)

	require.Equal(t, once.State, twice.State)
	require.Empty(t, twice.Outputs)
}
