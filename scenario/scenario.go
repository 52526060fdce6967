// Package scenario implements deterministic named actions on top of the
// Tendermint CSMI instantiation: receive_proposal_from,
// receive_prevote_from, receive_precommit_from, receive_byzantine,
// expire_timeout. Each one consumes the unique matching buffered message
// (or the single active timeout) and fails loudly if the match is not
// unique - errors are preconditions here, not recoverable states.
package scenario

import (
	"github.com/pkg/errors"

	"github.com/autonity/tendermint-sim/consensus/tendermint/accountability"
	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/core"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
	"github.com/autonity/tendermint-sim/csmi"
)

// ErrNoMatch is returned when a named action's filter matches no
// buffered message or active timeout.
var ErrNoMatch = errors.New("scenario: no matching message")

// ErrAmbiguous is returned when a named action's filter matches more
// than one buffered message, so "the" message it should consume is not
// unique.
var ErrAmbiguous = errors.New("scenario: more than one matching message")

// New builds a fresh harness over cfg's nodes: every process starts in
// InitLocalState, and the initial Propose for round 0 (src = PROPOSER(0),
// proposal = VALUES(0), valid_round = -1) is placed in every buffer, per
// the initial message fan-out (including the proposer's own -
// deliberately, see DESIGN.md).
func New(cfg config.Config, byzantine []message.Message, timeoutChance int, oracle *csmi.Oracle) *core.Harness {
	nodes := cfg.Nodes()
	env := csmi.NewEnvironment[message.Node, core.LocalState, message.Message, message.TimeoutEvent, accountability.Bookkeeping](
		nodes,
		core.InitLocalState,
		accountability.NewBookkeeping(),
	)

	initial := message.NewPropose(cfg.Proposer(0), 0, cfg.Values[0], message.NoRound)
	env.Broadcast(initial)

	return core.NewHarness(cfg, env, byzantine, timeoutChance, oracle)
}

func uniqueMatch(candidates []message.Message, pred func(message.Message) bool) (message.Message, error) {
	var match message.Message
	found := 0
	for _, m := range candidates {
		if pred(m) {
			match = m
			found++
		}
	}
	switch found {
	case 0:
		return message.Message{}, ErrNoMatch
	case 1:
		return match, nil
	default:
		return message.Message{}, ErrAmbiguous
	}
}

// ReceiveProposalFrom delivers to n the unique Propose buffered for it
// whose source is src.
func ReceiveProposalFrom(h *core.Harness, n, src message.Node) error {
	return receiveUnique(h, n, func(m message.Message) bool {
		return m.Kind == message.ProposeKind && m.Src == src
	})
}

// ReceivePrevoteFrom delivers to n the unique PreVote buffered for it
// whose source is src.
func ReceivePrevoteFrom(h *core.Harness, n, src message.Node) error {
	return receiveUnique(h, n, func(m message.Message) bool {
		return m.Kind == message.PreVoteKind && m.Src == src
	})
}

// ReceivePrecommitFrom delivers to n the unique PreCommit buffered for
// it whose source is src.
func ReceivePrecommitFrom(h *core.Harness, n, src message.Node) error {
	return receiveUnique(h, n, func(m message.Message) bool {
		return m.Kind == message.PreCommitKind && m.Src == src
	})
}

func receiveUnique(h *core.Harness, n message.Node, pred func(message.Message) bool) error {
	match, err := uniqueMatch(h.Env.BufferedMessages(n), pred)
	if err != nil {
		return errors.Wrapf(err, "process %v", n)
	}
	return h.ReceiveOne(n, match)
}

// ReceiveByzantine delivers msg to n directly, as if some faulty process
// had sent it - bypassing Broadcast's uniform fan-out, since a faulty
// process may equivocate by sending different things to different
// peers. Unlike the receive_*_from actions this one names the message
// explicitly rather than filtering a buffer, since Byzantine candidates
// are not necessarily pre-buffered anywhere.
func ReceiveByzantine(h *core.Harness, n message.Node, msg message.Message) error {
	h.DeliverByzantine(msg, n)
	return h.ReceiveOne(n, msg)
}

// ExpireTimeout fires n's single active timeout. Fails if n has none,
// since Environment maintains at most one active timeout per process by
// construction: a process has at most one active timeout at a time.
func ExpireTimeout(h *core.Harness, n message.Node) error {
	if h.Env.ActiveTimeout(n) == nil {
		return errors.Wrapf(ErrNoMatch, "process %v has no active timeout", n)
	}
	return h.FireOne(n)
}
