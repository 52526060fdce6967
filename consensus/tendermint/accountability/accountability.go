// Package accountability implements the evidence bookkeeping and the
// accountability properties: agreement, validity, equivocation and
// amnesia detection, and the accountability property that ties them
// together.
package accountability

import (
	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

// Bookkeeping is the auxiliary state threaded alongside LocalState by the
// harness: three evidence sets, one per message kind, plus a
// breakpoint latch used for debugging. Evidence sets are monotone:
// CollectEvidence effects only ever insert.
type Bookkeeping struct {
	ProposeEvidence   *message.Set
	PrevoteEvidence   *message.Set
	PrecommitEvidence *message.Set
	Breakpoint        bool
}

// NewBookkeeping returns empty bookkeeping.
func NewBookkeeping() Bookkeeping {
	return Bookkeeping{
		ProposeEvidence:   message.NewSet(),
		PrevoteEvidence:   message.NewSet(),
		PrecommitEvidence: message.NewSet(),
	}
}

func (b Bookkeeping) evidenceFor(k message.Kind) *message.Set {
	switch k {
	case message.ProposeKind:
		return b.ProposeEvidence
	case message.PreVoteKind:
		return b.PrevoteEvidence
	case message.PreCommitKind:
		return b.PrecommitEvidence
	default:
		return nil
	}
}

// Record folds a CollectEvidence effect into the matching evidence set.
func (b Bookkeeping) Record(m message.Message) {
	if set := b.evidenceFor(m.Kind); set != nil {
		set.Insert(m)
	}
}

// Equivocation reports whether n produced two distinct messages of the
// same kind and round somewhere in the evidence sets.
func Equivocation(b Bookkeeping, n message.Node) bool {
	for _, set := range []*message.Set{b.ProposeEvidence, b.PrevoteEvidence, b.PrecommitEvidence} {
		if equivocatesIn(set, n) {
			return true
		}
	}
	return false
}

func equivocatesIn(set *message.Set, n message.Node) bool {
	byRound := make(map[message.Round][]message.Message)
	for _, m := range set.Slice() {
		if m.Src != n {
			continue
		}
		byRound[m.Round] = append(byRound[m.Round], m)
	}
	for _, msgs := range byRound {
		for i := 0; i < len(msgs); i++ {
			for j := i + 1; j < len(msgs); j++ {
				if msgs[i] != msgs[j] {
					return true
				}
			}
		}
	}
	return false
}

// Amnesia reports whether n exhibits the amnesia pattern: it proposed v1
// with valid_round = r1 at round r1, later proposed a distinct valid v2
// with valid_round = r2 at round r2 (r1 < r2), and every intermediate
// round in [r1, r2) has a recorded 2F+1 prevote quorum for id(v2). The
// predicate intentionally compares the proposal at round r1 against
// valid_round = r1 (rather than requiring valid_round < r1, as
// Tendermint's textbook amnesia definition would); see DESIGN.md.
func Amnesia(cfg config.Config, b Bookkeeping, n message.Node) bool {
	proposals := b.ProposeEvidence.Filter(func(m message.Message) bool { return m.Src == n })

	for _, p1 := range proposals {
		if p1.ValidRound != p1.Round {
			continue
		}
		for _, p2 := range proposals {
			r1, r2 := p1.Round, p2.Round
			if r2 <= r1 || p2.ValidRound != r2 {
				continue
			}
			if p1.Proposal == p2.Proposal {
				continue
			}
			if !cfg.IsValid(p1.Proposal) || !cfg.IsValid(p2.Proposal) {
				continue
			}
			if everyIntermediateRoundHasQuorumFor(cfg, b, r1, r2, p2.Proposal) {
				return true
			}
		}
	}
	return false
}

func everyIntermediateRoundHasQuorumFor(cfg config.Config, b Bookkeeping, r1, r2 message.Round, v message.Value) bool {
	id := message.ID(v)
	for r := r1; r < r2; r++ {
		contributing := b.PrevoteEvidence.Filter(func(m message.Message) bool {
			return m.Round == r && m.HasID && m.ID == id
		})
		if !cfg.Quorum(distinctSources(contributing)) {
			return false
		}
	}
	return true
}

func distinctSources(msgs []message.Message) int {
	seen := make(map[message.Node]struct{}, len(msgs))
	for _, m := range msgs {
		seen[m.Src] = struct{}{}
	}
	return len(seen)
}

// Misbehaves reports whether n exhibits either detectable misbehavior:
// equivocation or amnesia.
func Misbehaves(cfg config.Config, b Bookkeeping, n message.Node) bool {
	return Equivocation(b, n) || Amnesia(cfg, b, n)
}

// Agreement holds iff for all correct p, q, either one has no decision,
// or their decisions are equal.
func Agreement(decisions map[message.Node]*message.Value, cfg config.Config) bool {
	for _, p := range cfg.Nodes() {
		if !cfg.IsCorrect(p) {
			continue
		}
		for _, q := range cfg.Nodes() {
			if !cfg.IsCorrect(q) {
				continue
			}
			dp, dq := decisions[p], decisions[q]
			if dp == nil || dq == nil {
				continue
			}
			if *dp != *dq {
				return false
			}
		}
	}
	return true
}

// Validity holds iff every correct process's decision, if any, is a
// valid value.
func Validity(decisions map[message.Node]*message.Value, cfg config.Config) bool {
	for _, p := range cfg.Nodes() {
		if !cfg.IsCorrect(p) {
			continue
		}
		d := decisions[p]
		if d == nil {
			continue
		}
		if !cfg.IsValid(*d) {
			return false
		}
	}
	return true
}

// Accountability holds iff agreement holds, or at least F+1 faulty
// processes each exhibit equivocation or amnesia.
func Accountability(decisions map[message.Node]*message.Value, cfg config.Config, b Bookkeeping) bool {
	if Agreement(decisions, cfg) {
		return true
	}

	misbehaving := 0
	for _, n := range cfg.Faulty.ToSlice() {
		node := n.(message.Node)
		if Misbehaves(cfg, b, node) {
			misbehaving++
		}
	}
	return misbehaving >= cfg.F+1
}
