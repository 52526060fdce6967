// Package csmi implements the Consensus State Machine Interface harness: a
// small, protocol-agnostic engine that owns per-process buffers and
// timeouts and drives a consensus protocol one message or one timeout at a
// time, via three pure functions the protocol supplies (receive_message,
// fire_timeout_event, apply_effect).
//
// Nothing in this package knows about Tendermint, proposals, or votes -
// it is parameterised over a process id P, a per-process state S, a
// message M, a timeout-event payload T, and a bookkeeping type B, all
// supplied by the caller. See consensus/tendermint/core for the
// Tendermint instantiation.
package csmi

import (
	mapset "github.com/deckarep/golang-set"
	"github.com/zfjagann/golang-ring"
)

// historyCapacity bounds the environment's history trace to a generous
// estimate of rounds x processes x step kinds, so a long-running
// scenario's trace doesn't grow without limit.
const historyCapacity = 50 * 20 * 3

// Environment is the mutable world the harness steps: per-process state,
// per-process message buffers, per-process active timeout, and a single
// shared bookkeeping value.
type Environment[P comparable, S any, M comparable, T any, B any] struct {
	State          map[P]S
	Buffers        map[P]mapset.Set // of M
	ActiveTimeouts map[P]*T
	Bookkeeping    B
	history        ring.Ring
}

// NewEnvironment builds an environment over processes, with per-process
// state seeded by initState and an empty buffer and no active timeout for
// each process.
func NewEnvironment[P comparable, S any, M comparable, T any, B any](processes []P, initState func(P) S, bookkeeping B) *Environment[P, S, M, T, B] {
	env := &Environment[P, S, M, T, B]{
		State:          make(map[P]S, len(processes)),
		Buffers:        make(map[P]mapset.Set, len(processes)),
		ActiveTimeouts: make(map[P]*T, len(processes)),
		Bookkeeping:    bookkeeping,
	}
	env.history.SetCapacity(historyCapacity)
	for _, p := range processes {
		env.State[p] = initState(p)
		env.Buffers[p] = mapset.NewThreadUnsafeSet()
	}
	return env
}

// StepKind tags what kind of step produced a StepRecord.
type StepKind uint8

const (
	MessageStep StepKind = iota
	TimeoutStep
	ByzantineStep
)

func (k StepKind) String() string {
	switch k {
	case MessageStep:
		return "message"
	case TimeoutStep:
		return "timeout"
	case ByzantineStep:
		return "byzantine"
	default:
		return "unknown"
	}
}

// StepRecord is one entry of the environment's history trace: which
// process acted, on what kind of input, and the input itself. Kept so
// scenario code and tests can assert on the exact sequence of steps a run
// took, not just its final state.
type StepRecord[P comparable, M comparable, T any] struct {
	Process P
	Kind    StepKind
	Message *M
	Timeout *T
}

// InsertMessage places m into p's buffer. Buffers are sets: inserting a
// message that is already buffered is a no-op. A message that was already
// consumed (removed by RemoveMessage) is buffered again if inserted again.
func (e *Environment[P, S, M, T, B]) InsertMessage(p P, m M) {
	if e.Buffers[p] == nil {
		e.Buffers[p] = mapset.NewThreadUnsafeSet()
	}
	e.Buffers[p].Add(m)
}

// Broadcast inserts m into every process's buffer, including the
// sender's own.
func (e *Environment[P, S, M, T, B]) Broadcast(m M) {
	for p := range e.State {
		e.InsertMessage(p, m)
	}
}

// RemoveMessage drops m from p's buffer, once it has been delivered.
func (e *Environment[P, S, M, T, B]) RemoveMessage(p P, m M) {
	if e.Buffers[p] == nil {
		return
	}
	e.Buffers[p].Remove(m)
}

// HasMessage reports whether m is currently buffered for p.
func (e *Environment[P, S, M, T, B]) HasMessage(p P, m M) bool {
	return e.Buffers[p] != nil && e.Buffers[p].Contains(m)
}

// BufferedMessages returns the messages currently buffered for p, in no
// particular order; callers that need determinism should sort the
// result themselves.
func (e *Environment[P, S, M, T, B]) BufferedMessages(p P) []M {
	buf := e.Buffers[p]
	if buf == nil {
		return nil
	}
	raw := buf.ToSlice()
	out := make([]M, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.(M))
	}
	return out
}

// SetTimeout installs t as p's active timeout, replacing whatever was
// there according to shouldReplace (the protocol's own timeout
// replacement policy - e.g. message.ShouldReplace).
func (e *Environment[P, S, M, T, B]) SetTimeout(p P, t T, shouldReplace func(old, new T) bool) {
	cur := e.ActiveTimeouts[p]
	if cur == nil || shouldReplace(*cur, t) {
		tt := t
		e.ActiveTimeouts[p] = &tt
	}
}

// ClearTimeout removes p's active timeout, once it has fired.
func (e *Environment[P, S, M, T, B]) ClearTimeout(p P) {
	delete(e.ActiveTimeouts, p)
}

// ActiveTimeout returns p's active timeout, or nil if it has none.
func (e *Environment[P, S, M, T, B]) ActiveTimeout(p P) *T {
	return e.ActiveTimeouts[p]
}

// Record appends a StepRecord to the environment's bounded history trace,
// evicting the oldest entry once historyCapacity is exceeded.
func (e *Environment[P, S, M, T, B]) Record(rec StepRecord[P, M, T]) {
	e.history.Enqueue(rec)
}

// History returns the environment's history trace in the order it was
// recorded, oldest first.
func (e *Environment[P, S, M, T, B]) History() []StepRecord[P, M, T] {
	raw := e.history.Values()
	out := make([]StepRecord[P, M, T], 0, len(raw))
	for _, v := range raw {
		out = append(out, v.(StepRecord[P, M, T]))
	}
	return out
}

// Processes returns every process the environment tracks state for, in
// no particular order.
func (e *Environment[P, S, M, T, B]) Processes() []P {
	out := make([]P, 0, len(e.State))
	for p := range e.State {
		out = append(out, p)
	}
	return out
}
