// Package config holds the configuration surface of the Tendermint model:
// the fixed node partition, the proposer/value functions, and the harness
// tuning knobs. It follows the same "plain struct + package-level
// constructors + Validate()" shape used elsewhere in this codebase for
// node configuration.
package config

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

// Config is the configuration of one model run: the node partition, the
// proposer/value functions, and a timeout-chance setting.
type Config struct {
	// F is the configured bound on the number of faulty processes.
	F int

	// Correct and Faulty partition NODES. Disjoint by construction; their
	// union is NODES.
	Correct mapset.Set // of message.Node
	Faulty  mapset.Set // of message.Node

	// Proposer maps a round to its designated proposer. Total over the
	// rounds named in Values.
	Proposer func(message.Round) message.Node

	// Values maps a round to the value its proposer proposes. Its key set
	// defines ROUNDS.
	Values map[message.Round]message.Value

	// TimeoutChance is a percentage in [0,100], checked by Validate. The
	// harness does not read it: core.NewHarness takes its timeout chance
	// as a separate argument.
	TimeoutChance int
}

// Validate checks the structural invariants a Config must hold before it
// can be used to initialize a harness.
func (c Config) Validate() error {
	if c.F < 0 {
		return errors.Errorf("config: F must be >= 0, got %d", c.F)
	}
	if c.Correct == nil || c.Faulty == nil {
		return errors.New("config: Correct and Faulty must be set")
	}
	if c.Correct.Intersect(c.Faulty).Cardinality() != 0 {
		return errors.New("config: Correct and Faulty must be disjoint")
	}
	if c.Faulty.Cardinality() > c.F {
		return errors.Errorf("config: |Faulty|=%d exceeds F=%d", c.Faulty.Cardinality(), c.F)
	}
	if c.Proposer == nil {
		return errors.New("config: Proposer must be set")
	}
	if len(c.Values) == 0 {
		return errors.New("config: Values must name at least one round")
	}
	if c.TimeoutChance < 0 || c.TimeoutChance > 100 {
		return errors.Errorf("config: TimeoutChance must be in [0,100], got %d", c.TimeoutChance)
	}
	return nil
}

// Nodes returns the full node set (Correct ∪ Faulty) as a sorted slice, so
// that iteration order never leaks nondeterminism into test expectations.
func (c Config) Nodes() []message.Node {
	all := c.Correct.Union(c.Faulty)
	return sortedNodes(all)
}

// IsCorrect reports whether n is a member of CORRECT.
func (c Config) IsCorrect(n message.Node) bool {
	return c.Correct.Contains(n)
}

// IsFaulty reports whether n is a member of FAULTY.
func (c Config) IsFaulty(n message.Node) bool {
	return c.Faulty.Contains(n)
}

// Rounds returns ROUNDS, the key set of Values, sorted ascending. This is
// the first-class derived set described in SPEC_FULL.md §C.2; it bounds
// the Byzantine Propose generator and sizes nothing else since received_*
// sets grow on demand.
func (c Config) Rounds() []message.Round {
	rounds := make([]message.Round, 0, len(c.Values))
	for r := range c.Values {
		rounds = append(rounds, r)
	}
	slices.Sort(rounds)
	return rounds
}

// ValidValues is { VALUES(r) | PROPOSER(r) ∈ CORRECT }.
func (c Config) ValidValues() map[message.Value]bool {
	out := make(map[message.Value]bool)
	for _, r := range c.Rounds() {
		if c.IsCorrect(c.Proposer(r)) {
			out[c.Values[r]] = true
		}
	}
	return out
}

// IsValid reports whether v is a valid value under this configuration.
func (c Config) IsValid(v message.Value) bool {
	return c.ValidValues()[v]
}

// Quorum reports whether n distinct-source messages meet the 2F+1 bound.
func (c Config) Quorum(n int) bool {
	return n >= 2*c.F+1
}

func sortedNodes(s mapset.Set) []message.Node {
	out := make([]message.Node, 0, s.Cardinality())
	for _, v := range s.ToSlice() {
		out = append(out, v.(message.Node))
	}
	slices.SortFunc(out, func(a, b message.Node) bool { return a < b })
	return out
}

// NodeSet builds a mapset.Set of message.Node from a literal list, for use
// by test scenarios and by the example FiveNode configuration.
func NodeSet(nodes ...message.Node) mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for _, n := range nodes {
		s.Add(n)
	}
	return s
}

func (c Config) String() string {
	return fmt.Sprintf("Config{F:%d Correct:%v Faulty:%v Rounds:%v}", c.F, sortedNodes(c.Correct), c.Faulty.ToSlice(), c.Rounds())
}
