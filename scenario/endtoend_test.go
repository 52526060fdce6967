package scenario_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autonity/tendermint-sim/consensus/tendermint/accountability"
	"github.com/autonity/tendermint-sim/consensus/tendermint/byzantine"
	"github.com/autonity/tendermint-sim/consensus/tendermint/core"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
	"github.com/autonity/tendermint-sim/csmi"
	"github.com/autonity/tendermint-sim/scenario"
)

func bufferHas(h *core.Harness, n message.Node, m message.Message) bool {
	return h.Env.HasMessage(n, m)
}

// Scenario 1: line-28 reachability.
func TestLine28Reachability(t *testing.T) {
	cfg := scenario.FiveNodeConfig()
	h := scenario.New(cfg, nil, 0, csmi.NewOracle(1))

	v0ID := message.ID("v0")

	require.NoError(t, scenario.ReceiveProposalFrom(h, "p1", "p1"))
	require.NoError(t, scenario.ReceiveProposalFrom(h, "p2", "p1"))

	require.NoError(t, scenario.ReceivePrevoteFrom(h, "p1", "p1"))
	require.NoError(t, scenario.ReceivePrevoteFrom(h, "p1", "p2"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p1", message.NewVoteForValue(message.PreVoteKind, "p4", 0, v0ID)))

	p1 := h.Env.State["p1"]
	require.ElementsMatch(t, []message.Message{
		message.NewVoteForValue(message.PreVoteKind, "p1", 0, v0ID),
		message.NewVoteForValue(message.PreVoteKind, "p2", 0, v0ID),
		message.NewVoteForValue(message.PreVoteKind, "p4", 0, v0ID),
	}, p1.ReceivedPrevotes.Slice())
	precommitP1 := message.NewVoteForValue(message.PreCommitKind, "p1", 0, v0ID)
	for _, n := range cfg.Nodes() {
		require.True(t, bufferHas(h, n, precommitP1), "expected %s buffer to contain %s", n, precommitP1)
	}

	require.NoError(t, scenario.ReceivePrevoteFrom(h, "p2", "p1"))
	require.NoError(t, scenario.ReceivePrevoteFrom(h, "p2", "p2"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewVoteForValue(message.PreVoteKind, "p4", 0, v0ID)))

	precommitP2 := message.NewVoteForValue(message.PreCommitKind, "p2", 0, v0ID)
	for _, n := range cfg.Nodes() {
		require.True(t, bufferHas(h, n, precommitP2))
	}

	require.NoError(t, scenario.ReceivePrecommitFrom(h, "p2", "p1"))
	require.NoError(t, scenario.ReceivePrecommitFrom(h, "p2", "p2"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewVoteForValue(message.PreCommitKind, "p4", 0, message.ID("v2"))))

	p2 := h.Env.State["p2"]
	require.NotNil(t, p2.ValidValue)
	require.Equal(t, message.Value("v0"), *p2.ValidValue)
	active := h.Env.ActiveTimeout("p2")
	require.NotNil(t, active)
	require.Equal(t, message.TimeoutEvent{Kind: message.PreCommitTimeout, Round: 0}, *active)

	require.NoError(t, scenario.ExpireTimeout(h, "p2"))

	p2 = h.Env.State["p2"]
	require.Equal(t, message.Round(1), p2.Round)
	require.Equal(t, message.Propose, p2.Stage)
	round1Propose := message.NewPropose("p2", 1, "v0", 0)
	for _, n := range cfg.Nodes() {
		require.True(t, bufferHas(h, n, round1Propose))
	}

	require.NoError(t, scenario.ReceiveProposalFrom(h, "p2", "p2"))
	p2 = h.Env.State["p2"]
	require.Equal(t, message.PreVote, p2.Stage)
	require.True(t, bufferHas(h, "p1", message.NewVoteForValue(message.PreVoteKind, "p2", 1, v0ID)))
}

// Scenario 2: disagreement under > 1/3 faulty.
func TestDisagreementUnderMoreThanOneThirdFaulty(t *testing.T) {
	cfg := scenario.TwoFaultyConfig()
	h := scenario.New(cfg, nil, 0, csmi.NewOracle(1))

	v0ID, v1ID := message.ID("v0"), message.ID("v1")

	require.NoError(t, scenario.ReceiveByzantine(h, "p1", message.NewPropose("p3", 0, "v0", message.NoRound)))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewPropose("p3", 0, "v1", message.NoRound)))

	require.NoError(t, scenario.ReceivePrevoteFrom(h, "p1", "p1"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p1", message.NewVoteForValue(message.PreVoteKind, "p3", 0, v0ID)))
	require.NoError(t, scenario.ReceiveByzantine(h, "p1", message.NewVoteForValue(message.PreVoteKind, "p4", 0, v0ID)))

	require.NoError(t, scenario.ReceivePrevoteFrom(h, "p2", "p2"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewVoteForValue(message.PreVoteKind, "p3", 0, v1ID)))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewVoteForValue(message.PreVoteKind, "p4", 0, v1ID)))

	require.Equal(t, message.PreCommit, h.Env.State["p1"].Stage)
	require.Equal(t, message.PreCommit, h.Env.State["p2"].Stage)

	require.NoError(t, scenario.ReceivePrecommitFrom(h, "p1", "p1"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p1", message.NewVoteForValue(message.PreCommitKind, "p3", 0, v0ID)))
	require.NoError(t, scenario.ReceiveByzantine(h, "p1", message.NewVoteForValue(message.PreCommitKind, "p4", 0, v0ID)))

	require.NoError(t, scenario.ReceivePrecommitFrom(h, "p2", "p2"))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewVoteForValue(message.PreCommitKind, "p3", 0, v1ID)))
	require.NoError(t, scenario.ReceiveByzantine(h, "p2", message.NewVoteForValue(message.PreCommitKind, "p4", 0, v1ID)))

	p1, p2 := h.Env.State["p1"], h.Env.State["p2"]
	require.NotNil(t, p1.Decision)
	require.Equal(t, message.Value("v0"), *p1.Decision)
	require.NotNil(t, p2.Decision)
	require.Equal(t, message.Value("v1"), *p2.Decision)

	require.True(t, accountability.Equivocation(h.Env.Bookkeeping, "p3"))
	require.True(t, accountability.Equivocation(h.Env.Bookkeeping, "p4"))

	decisions := map[message.Node]*message.Value{"p1": p1.Decision, "p2": p2.Decision}
	require.False(t, accountability.Agreement(decisions, cfg))
	require.True(t, accountability.Accountability(decisions, cfg, h.Env.Bookkeeping))
}

// Scenario 3: validity under one faulty proposer. Drives a
// randomized run of the five-node configuration (PROPOSER(0)=p1 is
// correct) for up to 500 steps and checks that every correct
// process's eventual decision, if any, is a valid value.
func TestValidityUnderOneFaultyProposer(t *testing.T) {
	cfg := scenario.FiveNodeConfig()
	oracle := csmi.NewOracle(42)
	observed := byzantine.ObservedRounds(cfg.Rounds()...)
	byz := byzantine.Enumerate(cfg, observed)
	h := scenario.New(cfg, byz, 20, oracle)

	for i := 0; i < 500; i++ {
		if err := h.Step(); err != nil {
			break
		}
	}

	decisions := make(map[message.Node]*message.Value)
	for _, n := range cfg.Nodes() {
		decisions[n] = h.Env.State[n].Decision
	}
	require.True(t, accountability.Validity(decisions, cfg))
}

// Scenario 4: no spurious decision. From init alone, with
// no steps taken, every process has decision = None and stage = Propose.
func TestNoSpuriousDecisionFromInit(t *testing.T) {
	cfg := scenario.FiveNodeConfig()
	h := scenario.New(cfg, nil, 0, csmi.NewOracle(1))

	for _, n := range cfg.Nodes() {
		s := h.Env.State[n]
		require.Nil(t, s.Decision, "process %s", n)
		require.Equal(t, message.Propose, s.Stage, "process %s", n)
	}
}

// Scenario 5: timeout replacement. Starting a PreVoteTimeout
// for round 1 while a ProposeTimeout for round 0 is active replaces it;
// the reverse ordering is ignored.
func TestTimeoutReplacement(t *testing.T) {
	env := csmi.NewEnvironment[message.Node, core.LocalState, message.Message, message.TimeoutEvent, accountability.Bookkeeping](
		[]message.Node{"p1"},
		core.InitLocalState,
		accountability.NewBookkeeping(),
	)

	env.SetTimeout("p1", message.TimeoutEvent{Kind: message.ProposeTimeout, Round: 0}, message.ShouldReplace)
	env.SetTimeout("p1", message.TimeoutEvent{Kind: message.PreVoteTimeout, Round: 1}, message.ShouldReplace)
	require.Equal(t, message.TimeoutEvent{Kind: message.PreVoteTimeout, Round: 1}, *env.ActiveTimeout("p1"))

	env.SetTimeout("p1", message.TimeoutEvent{Kind: message.ProposeTimeout, Round: 0}, message.ShouldReplace)
	require.Equal(t, message.TimeoutEvent{Kind: message.PreVoteTimeout, Round: 1}, *env.ActiveTimeout("p1"))
}
