// Package byzantine implements the Byzantine message generator: given a
// configuration and the set of rounds observed so far across correct
// processes, it enumerates every message a faulty process could plausibly
// send, as candidates the CSMI harness's Byzantine branch may inject at
// any time.
package byzantine

import (
	mapset "github.com/deckarep/golang-set"
	"golang.org/x/exp/slices"

	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

// Enumerate returns every candidate message a faulty process could send,
// over FAULTY x VALUES x (ROUNDS ∪ {-1}) for Propose and FAULTY x VALUES
// for PreVote/PreCommit (plus the nil vote in each case), with the
// message's own Round field ranging over observedRounds - the rounds
// actually reached by some correct process so far. The result is
// deduplicated via a mapset.Set (message.Message is comparable)
// and returned in a deterministic, sorted order so that tests asserting
// on it are not at the mercy of map/set iteration order.
func Enumerate(cfg config.Config, observedRounds []message.Round) []message.Message {
	values := sortedValues(cfg.Values)
	validRounds := append([]message.Round{message.NoRound}, cfg.Rounds()...)

	candidates := mapset.NewThreadUnsafeSet()
	for _, f := range sortedFaulty(cfg) {
		for _, r := range observedRounds {
			for _, v := range values {
				for _, vr := range validRounds {
					candidates.Add(message.NewPropose(f, r, v, vr))
				}
				candidates.Add(message.NewVoteForValue(message.PreVoteKind, f, r, message.ID(v)))
				candidates.Add(message.NewVoteForValue(message.PreCommitKind, f, r, message.ID(v)))
			}
			candidates.Add(message.NewVoteForNil(message.PreVoteKind, f, r))
			candidates.Add(message.NewVoteForNil(message.PreCommitKind, f, r))
		}
	}

	return sortedMessages(candidates)
}

func sortedFaulty(cfg config.Config) []message.Node {
	out := make([]message.Node, 0, cfg.Faulty.Cardinality())
	for _, n := range cfg.Faulty.ToSlice() {
		out = append(out, n.(message.Node))
	}
	slices.SortFunc(out, func(a, b message.Node) bool { return a < b })
	return out
}

func sortedValues(values map[message.Round]message.Value) []message.Value {
	seen := make(map[message.Value]struct{}, len(values))
	out := make([]message.Value, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b message.Value) bool { return a < b })
	return out
}

func sortedMessages(candidates mapset.Set) []message.Message {
	out := make([]message.Message, 0, candidates.Cardinality())
	for _, c := range candidates.ToSlice() {
		out = append(out, c.(message.Message))
	}
	slices.SortFunc(out, func(a, b message.Message) bool {
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.Proposal != b.Proposal {
			return a.Proposal < b.Proposal
		}
		if a.ValidRound != b.ValidRound {
			return a.ValidRound < b.ValidRound
		}
		if a.HasID != b.HasID {
			return !a.HasID
		}
		return a.ID < b.ID
	})
	return out
}

// ObservedRounds collects the set of rounds currently occupied by any of
// the given local-state-ish round readers, used by scenario code to
// compute the observedRounds argument to Enumerate without byzantine
// importing core (which would create a cycle). Callers pass in whatever
// rounds they have on hand; duplicates are fine, Enumerate only reads the
// distinct set.
func ObservedRounds(rounds ...message.Round) []message.Round {
	seen := make(map[message.Round]struct{}, len(rounds))
	out := make([]message.Round, 0, len(rounds))
	for _, r := range rounds {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b message.Round) bool { return a < b })
	return out
}
