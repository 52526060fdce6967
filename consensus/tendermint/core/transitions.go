package core

import (
	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

// ReceiveMessage dispatches m to the handler for its Kind. This is the
// receive_message(state, msg) pure function.
func ReceiveMessage(cfg config.Config, s LocalState, m message.Message) Result {
	// The received_* sets are shared by pointer with the caller's copy of
	// s; clone them so that inserting m leaves the caller's state as it was.
	s.ReceivedProposals = s.ReceivedProposals.Clone()
	s.ReceivedPrevotes = s.ReceivedPrevotes.Clone()
	s.ReceivedPrecommits = s.ReceivedPrecommits.Clone()

	switch m.Kind {
	case message.ProposeKind:
		return processPropose(cfg, s, m)
	case message.PreVoteKind:
		return processPrevote(cfg, s, m)
	case message.PreCommitKind:
		return processPrecommit(cfg, s, m)
	default:
		return noOutput(s)
	}
}

// FireTimeoutEvent dispatches t to the handler for its Kind. This is the
// fire_timeout_event(state, timeout) pure function.
func FireTimeoutEvent(cfg config.Config, s LocalState, t message.TimeoutEvent) Result {
	switch t.Kind {
	case message.ProposeTimeout:
		return fireProposeTimeout(cfg, s, t)
	case message.PreVoteTimeout:
		return firePreVoteTimeout(cfg, s, t)
	case message.PreCommitTimeout:
		return firePreCommitTimeout(cfg, s, t)
	default:
		return noOutput(s)
	}
}

// --- Incoming Propose (lines 22, 28, 36) ---

func processPropose(cfg config.Config, s LocalState, m message.Message) Result {
	s.ReceivedProposals.Insert(m)

	var outputs []message.Output
	s, outputs = applyProposeAtProposeStage(cfg, s, m, outputs)
	s, outputs = applyProposeQuorumAtProposeStage(cfg, s, m, outputs)
	s, outputs = applyProposeQuorumAfterPrevoteStage(cfg, s, m, outputs)

	return Result{State: s, Outputs: outputs}
}

// Rule (line 22): Propose at propose stage.
func applyProposeAtProposeStage(cfg config.Config, s LocalState, m message.Message, outputs []message.Output) (LocalState, []message.Output) {
	if !(m.ValidRound == message.NoRound && m.Round == s.Round && m.Src == cfg.Proposer(s.Round) && s.Stage == message.Propose) {
		return s, outputs
	}

	s.Stage = message.PreVote
	s.AfterPrevoteForFirstTime = true

	if cfg.IsValid(m.Proposal) && (s.LockedRound == message.NoRound || lockedOnValue(s, m.Proposal)) {
		outputs = append(outputs, message.Broadcast(message.NewVoteForValue(message.PreVoteKind, s.ProcessID, s.Round, message.ID(m.Proposal))))
	} else {
		outputs = append(outputs, message.Broadcast(message.NewVoteForNil(message.PreVoteKind, s.ProcessID, s.Round)))
	}
	outputs = collectEvidenceFor(outputs, m)

	return s, outputs
}

// Rule (line 28): Propose + quorum at propose stage.
func applyProposeQuorumAtProposeStage(cfg config.Config, s LocalState, m message.Message, outputs []message.Output) (LocalState, []message.Output) {
	if !(m.Round == s.Round && m.Src == cfg.Proposer(s.Round) && s.Stage == message.Propose && m.ValidRound >= 0 && m.ValidRound < s.Round) {
		return s, outputs
	}

	id := message.ID(m.Proposal)
	contributing := votesFor(s.ReceivedPrevotes, message.PreVoteKind, m.ValidRound, &id)
	if !cfg.Quorum(distinctSources(contributing)) {
		return s, outputs
	}

	s.Stage = message.PreVote
	s.AfterPrevoteForFirstTime = true

	if cfg.IsValid(m.Proposal) && (s.LockedRound <= m.ValidRound || lockedOnValue(s, m.Proposal)) {
		outputs = append(outputs, message.Broadcast(message.NewVoteForValue(message.PreVoteKind, s.ProcessID, s.Round, id)))
	} else {
		outputs = append(outputs, message.Broadcast(message.NewVoteForNil(message.PreVoteKind, s.ProcessID, s.Round)))
	}
	outputs = collectEvidenceFor(outputs, m)
	outputs = collectEvidenceFor(outputs, contributing...)
	outputs = append(outputs, message.Breakpoint())

	return s, outputs
}

// Rule (line 36): Propose + quorum after prevote stage for the first time.
func applyProposeQuorumAfterPrevoteStage(cfg config.Config, s LocalState, p message.Message, outputs []message.Output) (LocalState, []message.Output) {
	if !(p.Round == s.Round && p.Src == cfg.Proposer(s.Round) && (s.Stage == message.PreVote || s.Stage == message.PreCommit) && s.AfterPrevoteForFirstTime) {
		return s, outputs
	}

	id := message.ID(p.Proposal)
	contributing := votesFor(s.ReceivedPrevotes, message.PreVoteKind, s.Round, &id)
	if !cfg.Quorum(distinctSources(contributing)) {
		return s, outputs
	}

	s.ValidValue = valuePtr(p.Proposal)
	s.ValidRound = s.Round

	if s.Stage == message.PreVote {
		s.LockedValue = valuePtr(p.Proposal)
		s.LockedRound = p.Round
		s.Stage = message.PreCommit
		outputs = append(outputs, message.Broadcast(message.NewVoteForValue(message.PreCommitKind, s.ProcessID, s.Round, id)))
	}

	outputs = collectEvidenceFor(outputs, p)
	outputs = collectEvidenceFor(outputs, contributing...)

	return s, outputs
}

// --- Incoming PreVote (lines 34, 36, 44) ---

func processPrevote(cfg config.Config, s LocalState, m message.Message) Result {
	s.ReceivedPrevotes.Insert(m)

	var outputs []message.Output

	// Quorum-conditioned rules on proposals already received may now
	// fire, since the newly added prevote can complete their quorum.
	// Evaluated before line 34 so that a prevote completing both the
	// value-specific quorum (line 36) and the any-value quorum (line 34)
	// in the same step lets line 36 consume after_prevote_for_first_time
	// and advance to PreCommit; line 34's own stage=PreVote guard then
	// naturally no longer applies.
	for _, p := range s.ReceivedProposals.Slice() {
		s, outputs = applyProposeQuorumAtProposeStage(cfg, s, p, outputs)
		s, outputs = applyProposeQuorumAfterPrevoteStage(cfg, s, p, outputs)
	}

	s, outputs = applyPrevoteQuorumFirstTime(cfg, s, m, outputs)

	return Result{State: s, Outputs: outputs}
}

// Rule (line 34): prevote quorum for the first time at PreVote stage.
func applyPrevoteQuorumFirstTime(cfg config.Config, s LocalState, m message.Message, outputs []message.Output) (LocalState, []message.Output) {
	if !(m.Round == s.Round && s.Stage == message.PreVote && s.AfterPrevoteForFirstTime) {
		return s, outputs
	}

	// The quorum at line 34 is "any" prevote quorum for the round - for a
	// value or for nil - so count every prevote of the round regardless
	// of id, not just those matching one particular value.
	contributing := votesForRound(s.ReceivedPrevotes, message.PreVoteKind, s.Round)
	if !cfg.Quorum(distinctSources(contributing)) {
		return s, outputs
	}

	s.AfterPrevoteForFirstTime = false
	outputs = append(outputs, message.StartTimeoutOut(message.TimeoutEvent{Kind: message.PreVoteTimeout, Round: m.Round}))
	outputs = collectEvidenceFor(outputs, contributing...)

	return s, outputs
}

// PrevoteQuorumForNilAtPrevoteStage implements the line-44 rule: a quorum
// of nil prevotes at PreVote stage moves a process straight to PreCommit
// with a nil vote. It is intentionally NOT called from processPrevote -
// see DESIGN.md's open-question entry on this rule; this function exists
// purely to preserve that documented deviation as an explicit, testable
// unit.
func PrevoteQuorumForNilAtPrevoteStage(cfg config.Config, s LocalState, round message.Round) Result {
	if round != s.Round || s.Stage != message.PreVote {
		return noOutput(s)
	}

	contributing := votesFor(s.ReceivedPrevotes, message.PreVoteKind, round, nil)
	if !cfg.Quorum(distinctSources(contributing)) {
		return noOutput(s)
	}

	s.Stage = message.PreCommit
	outputs := []message.Output{message.Broadcast(message.NewVoteForNil(message.PreCommitKind, s.ProcessID, s.Round))}
	outputs = collectEvidenceFor(outputs, contributing...)

	return Result{State: s, Outputs: outputs}
}

// --- Incoming PreCommit (lines 47, 49) ---

func processPrecommit(cfg config.Config, s LocalState, m message.Message) Result {
	s.ReceivedPrecommits.Insert(m)

	var outputs []message.Output
	s, outputs = applyPrecommitQuorumFirstTime(cfg, s, m, outputs)

	for _, p := range s.ReceivedProposals.Slice() {
		if s.Decision != nil {
			break
		}
		s, outputs = applyDecision(cfg, s, p, outputs)
	}

	return Result{State: s, Outputs: outputs}
}

// Rule (line 47): precommit quorum for the first time.
func applyPrecommitQuorumFirstTime(cfg config.Config, s LocalState, m message.Message, outputs []message.Output) (LocalState, []message.Output) {
	if !(m.Round == s.Round && !s.PrecommitQuorum) {
		return s, outputs
	}

	contributing := votesForRound(s.ReceivedPrecommits, message.PreCommitKind, s.Round)
	if !cfg.Quorum(distinctSources(contributing)) {
		return s, outputs
	}

	s.PrecommitQuorum = true
	outputs = append(outputs, message.StartTimeoutOut(message.TimeoutEvent{Kind: message.PreCommitTimeout, Round: m.Round}))
	outputs = collectEvidenceFor(outputs, contributing...)

	return s, outputs
}

// Rule (line 49): decision.
func applyDecision(cfg config.Config, s LocalState, p message.Message, outputs []message.Output) (LocalState, []message.Output) {
	if s.Decision != nil || p.Src != cfg.Proposer(p.Round) {
		return s, outputs
	}

	id := message.ID(p.Proposal)
	contributing := votesFor(s.ReceivedPrecommits, message.PreCommitKind, p.Round, &id)
	if !cfg.Quorum(distinctSources(contributing)) {
		return s, outputs
	}
	if !cfg.IsValid(p.Proposal) {
		return s, outputs
	}

	s.Decision = valuePtr(p.Proposal)
	s.Stage = message.Decided
	outputs = collectEvidenceFor(outputs, p)
	outputs = collectEvidenceFor(outputs, contributing...)

	return s, outputs
}

// --- Timeouts ---

func fireProposeTimeout(cfg config.Config, s LocalState, t message.TimeoutEvent) Result {
	if s.Round != t.Round || s.Stage != message.Propose {
		return noOutput(s)
	}
	s.Stage = message.PreVote
	return Result{State: s, Outputs: []message.Output{
		message.Broadcast(message.NewVoteForNil(message.PreVoteKind, s.ProcessID, s.Round)),
	}}
}

func firePreVoteTimeout(cfg config.Config, s LocalState, t message.TimeoutEvent) Result {
	if s.Round != t.Round || s.Stage != message.PreVote {
		return noOutput(s)
	}
	s.Stage = message.PreCommit
	return Result{State: s, Outputs: []message.Output{
		message.Broadcast(message.NewVoteForNil(message.PreCommitKind, s.ProcessID, s.Round)),
	}}
}

func firePreCommitTimeout(cfg config.Config, s LocalState, t message.TimeoutEvent) Result {
	if s.Round != t.Round {
		return noOutput(s)
	}
	newState, outputs := StartRound(cfg, s, s.Round+1)
	return Result{State: newState, Outputs: outputs}
}

// votesForRound returns every message of kind in set for round,
// irrespective of which value (or nil) it votes for. Used by the line-34
// and line-47 guards, which are unconditioned on a specific id.
func votesForRound(set *message.Set, kind message.Kind, round message.Round) []message.Message {
	return set.Filter(func(m message.Message) bool {
		return m.Kind == kind && m.Round == round
	})
}
