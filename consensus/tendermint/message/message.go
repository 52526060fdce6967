// Package message defines the core data types shared by the Tendermint
// consensus logic and the CSMI harness that drives it: process identity,
// values, rounds, stages, the three message variants and the timeout and
// output types they produce.
package message

import "fmt"

// Node is the opaque name of a process, drawn from the finite set NODES.
type Node string

// Round is a non-negative round number. NoRound is the sentinel used for
// "no round" (locked_round / valid_round defaults).
type Round int64

// NoRound denotes the absence of a locked or valid round.
const NoRound Round = -1

// Value is an opaque application value.
type Value string

// ValueID is an injective abstraction of a Value. Hashing is modelled as
// the identity function: two values have the same ID iff they are equal.
type ValueID string

// ID models the (identity) hash of a value.
func ID(v Value) ValueID { return ValueID(v) }

// Stage is the per-round phase a process occupies.
type Stage uint8

const (
	Propose Stage = iota
	PreVote
	PreCommit
	Decided
)

func (s Stage) String() string {
	switch s {
	case Propose:
		return "propose"
	case PreVote:
		return "prevote"
	case PreCommit:
		return "precommit"
	case Decided:
		return "decided"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// Kind identifies which of the three message variants a Message carries.
type Kind uint8

const (
	ProposeKind Kind = iota
	PreVoteKind
	PreCommitKind
)

func (k Kind) String() string {
	switch k {
	case ProposeKind:
		return "Propose"
	case PreVoteKind:
		return "PreVote"
	case PreCommitKind:
		return "PreCommit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is a tagged union of the three Tendermint message variants. It is
// a flat, comparable struct (rather than an interface) so that it can be
// used directly as a set element / map key, which is what gives the
// harness's buffers their set semantics and the accountability evidence
// sets their insert-only, idempotent semantics for free.
//
// Field use by Kind:
//   - Propose:   Src, Round, Proposal, ValidRound
//   - PreVote:   Src, Round, HasID, ID
//   - PreCommit: Src, Round, HasID, ID
type Message struct {
	Kind       Kind
	Src        Node
	Round      Round
	Proposal   Value
	ValidRound Round

	HasID bool
	ID    ValueID
}

// NewPropose builds a Propose message.
func NewPropose(src Node, round Round, proposal Value, validRound Round) Message {
	return Message{Kind: ProposeKind, Src: src, Round: round, Proposal: proposal, ValidRound: validRound}
}

// NewVoteForValue builds a PreVote or PreCommit message carrying Some(id).
func NewVoteForValue(kind Kind, src Node, round Round, id ValueID) Message {
	return Message{Kind: kind, Src: src, Round: round, HasID: true, ID: id}
}

// NewVoteForNil builds a PreVote or PreCommit message carrying None.
func NewVoteForNil(kind Kind, src Node, round Round) Message {
	return Message{Kind: kind, Src: src, Round: round}
}

func (m Message) String() string {
	switch m.Kind {
	case ProposeKind:
		return fmt.Sprintf("Propose{src:%s round:%d proposal:%s validRound:%d}", m.Src, m.Round, m.Proposal, m.ValidRound)
	default:
		if m.HasID {
			return fmt.Sprintf("%s{src:%s round:%d id:%s}", m.Kind, m.Src, m.Round, m.ID)
		}
		return fmt.Sprintf("%s{src:%s round:%d id:nil}", m.Kind, m.Src, m.Round)
	}
}

// TimeoutKind identifies one of the three timeout kinds a process can have
// active.
type TimeoutKind uint8

const (
	ProposeTimeout TimeoutKind = iota
	PreVoteTimeout
	PreCommitTimeout
)

func (k TimeoutKind) String() string {
	switch k {
	case ProposeTimeout:
		return "ProposeTimeout"
	case PreVoteTimeout:
		return "PreVoteTimeout"
	case PreCommitTimeout:
		return "PreCommitTimeout"
	default:
		return fmt.Sprintf("timeoutKind(%d)", uint8(k))
	}
}

// phaseOrder gives Propose < PreVote < PreCommit, used by the timeout
// replacement policy in csmi.
func (k TimeoutKind) phaseOrder() int {
	switch k {
	case ProposeTimeout:
		return 0
	case PreVoteTimeout:
		return 1
	case PreCommitTimeout:
		return 2
	default:
		return -1
	}
}

// TimeoutEvent is the payload of an active per-process timeout.
type TimeoutEvent struct {
	Kind  TimeoutKind
	Round Round
}

func (t TimeoutEvent) String() string {
	return fmt.Sprintf("%s(round:%d)", t.Kind, t.Round)
}

// ShouldReplace implements the (asymmetric, intentionally-preserved-as-is)
// replacement policy: a new timeout replaces an active one iff it is in a
// later round, or - for the same round - has an earlier phase in the
// Propose < PreVote < PreCommit order.
//
// This asymmetry (a later phase intuitively ought to replace an earlier
// one, not the reverse) is intentional; see DESIGN.md.
func ShouldReplace(old, new TimeoutEvent) bool {
	if new.Round != old.Round {
		return new.Round > old.Round
	}
	return new.Kind.phaseOrder() < old.Kind.phaseOrder()
}

// OutputKind identifies one of the four effects a transition can produce.
type OutputKind uint8

const (
	BroadcastOutput OutputKind = iota
	StartTimeoutOutput
	CollectEvidenceOutput
	BreakpointOutput
)

// Output is the closed sum type a transition emits. Broadcast and
// CollectEvidence carry Msg; StartTimeout carries Timeout; Breakpoint
// carries neither.
type Output struct {
	Kind    OutputKind
	Msg     Message
	Timeout TimeoutEvent
}

func Broadcast(m Message) Output            { return Output{Kind: BroadcastOutput, Msg: m} }
func StartTimeoutOut(t TimeoutEvent) Output { return Output{Kind: StartTimeoutOutput, Timeout: t} }
func CollectEvidence(m Message) Output      { return Output{Kind: CollectEvidenceOutput, Msg: m} }
func Breakpoint() Output                    { return Output{Kind: BreakpointOutput} }
