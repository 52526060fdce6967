package message

import mapset "github.com/deckarep/golang-set"

// Set is an insert-only collection of Message values. It backs
// received_proposals / received_prevotes / received_precommits and the
// accountability evidence sets, all of which are required to be monotone
// within a run. Using a thread-unsafe mapset.Set gives us that monotonicity
// and delivery-idempotence (re-inserting an already-present message is a
// no-op) without hand-rolling a map[Message]struct{} dedup layer.
type Set struct {
	set mapset.Set
}

// NewSet returns an empty message set.
func NewSet() *Set {
	return &Set{set: mapset.NewThreadUnsafeSet()}
}

// Insert adds m to the set. Idempotent: inserting the same message twice
// leaves the set unchanged.
func (s *Set) Insert(m Message) {
	s.set.Add(m)
}

// Contains reports whether m is a member.
func (s *Set) Contains(m Message) bool {
	return s.set.Contains(m)
}

// Len returns the number of distinct messages held.
func (s *Set) Len() int {
	return s.set.Cardinality()
}

// Slice returns the set's members in unspecified order.
func (s *Set) Slice() []Message {
	raw := s.set.ToSlice()
	out := make([]Message, 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(Message))
	}
	return out
}

// Clone returns a shallow, independent copy of s.
func (s *Set) Clone() *Set {
	return &Set{set: s.set.Clone()}
}

// Filter returns the subset of messages for which pred returns true.
func (s *Set) Filter(pred func(Message) bool) []Message {
	var out []Message
	for _, m := range s.Slice() {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}
