// Package core implements the Tendermint per-process consensus logic as a
// set of pure transitions: receive_message, fire_timeout_event, and the
// start_round helper they both call into. Every exported function here is
// a pure function of (Config, LocalState, input) -> Result; none of them
// touch the network, a clock, or storage - those are the CSMI harness's
// job (package csmi).
package core

import (
	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

// LocalState is the per-process consensus state.
type LocalState struct {
	ProcessID message.Node
	Round     message.Round
	Stage     message.Stage

	Decision    *message.Value
	LockedValue *message.Value
	LockedRound message.Round
	ValidValue  *message.Value
	ValidRound  message.Round

	ReceivedProposals  *message.Set
	ReceivedPrevotes   *message.Set
	ReceivedPrecommits *message.Set

	AfterPrevoteForFirstTime bool
	PrecommitQuorum          bool
}

// InitLocalState builds the state a process holds before any step runs:
// the post-start_round(0) non-proposer defaults. No output is produced
// here; the initial Propose message is placed directly into every buffer
// by the harness initializer instead of being broadcast by the
// proposer.
func InitLocalState(id message.Node) LocalState {
	return LocalState{
		ProcessID:          id,
		Round:              0,
		Stage:              message.Propose,
		LockedRound:        message.NoRound,
		ValidRound:         message.NoRound,
		ReceivedProposals:  message.NewSet(),
		ReceivedPrevotes:   message.NewSet(),
		ReceivedPrecommits: message.NewSet(),
	}
}

// Result is the {state, output} pair every transition returns.
type Result struct {
	State   LocalState
	Outputs []message.Output
}

func noOutput(s LocalState) Result { return Result{State: s} }

func valuePtr(v message.Value) *message.Value { return &v }

func lockedOnValue(s LocalState, v message.Value) bool {
	return s.LockedValue != nil && *s.LockedValue == v
}

// distinctSources counts the number of distinct message senders:
// equivocating duplicates from the same source contribute only once.
func distinctSources(msgs []message.Message) int {
	seen := make(map[message.Node]struct{}, len(msgs))
	for _, m := range msgs {
		seen[m.Src] = struct{}{}
	}
	return len(seen)
}

// matchesVoteID reports whether a vote message matches the requested
// target: nil means "vote for nil", a non-nil id means "vote for that
// value id".
func matchesVoteID(m message.Message, id *message.ValueID) bool {
	if id == nil {
		return !m.HasID
	}
	return m.HasID && m.ID == *id
}

// votesFor returns the messages of kind in the set that vote for
// round/id; the "≥ 2F+1" quorum guards count their distinct sources.
func votesFor(set *message.Set, kind message.Kind, round message.Round, id *message.ValueID) []message.Message {
	return set.Filter(func(m message.Message) bool {
		return m.Kind == kind && m.Round == round && matchesVoteID(m, id)
	})
}

func collectEvidenceFor(outputs []message.Output, msgs ...message.Message) []message.Output {
	for _, m := range msgs {
		outputs = append(outputs, message.CollectEvidence(m))
	}
	return outputs
}

// StartRound implements start_round(r): entering round r resets
// round/stage/precommit_quorum but leaves after_prevote_for_first_time,
// received_*, locked_*, and valid_* untouched. The round's proposer
// broadcasts immediately; everyone else starts a ProposeTimeout.
func StartRound(cfg config.Config, s LocalState, r message.Round) (LocalState, []message.Output) {
	s.Round = r
	s.Stage = message.Propose
	s.PrecommitQuorum = false

	if cfg.Proposer(r) == s.ProcessID {
		proposal := cfg.Values[r]
		if s.ValidValue != nil {
			proposal = *s.ValidValue
		}
		return s, []message.Output{message.Broadcast(message.NewPropose(s.ProcessID, r, proposal, s.ValidRound))}
	}
	return s, []message.Output{message.StartTimeoutOut(message.TimeoutEvent{Kind: message.ProposeTimeout, Round: r})}
}
