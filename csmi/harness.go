package csmi

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// ReceiveMessageFunc is the protocol-supplied receive_message(state, msg)
// pure function.
type ReceiveMessageFunc[S any, M any, O any] func(s S, m M) (S, []O)

// FireTimeoutFunc is the protocol-supplied fire_timeout_event(state,
// timeout) pure function.
type FireTimeoutFunc[S any, T any, O any] func(s S, t T) (S, []O)

// ApplyEffectFunc translates one protocol output into environment
// mutations: inserting into buffers, arming timeouts, recording
// evidence, whatever the protocol's output vocabulary requires. It is
// the harness's "apply_effect", supplied by the protocol.
type ApplyEffectFunc[P comparable, S any, M comparable, T any, O any, B any] func(env *Environment[P, S, M, T, B], self P, out O)

// ShouldReplaceFunc is the protocol's timeout replacement policy,
// supplied to SetTimeout by ApplyEffect.
type ShouldReplaceFunc[T any] func(old, new T) bool

// Harness drives an Environment one message or one timeout at a time,
// via the three protocol-supplied functions above, plus a pool of
// Byzantine candidate messages and a TimeoutChance used by the
// nondeterministic Step to decide how often to favor firing a timeout
// over delivering a message.
type Harness[P comparable, S any, M comparable, T any, O any, B any] struct {
	Env *Environment[P, S, M, T, B]

	ReceiveMessage   ReceiveMessageFunc[S, M, O]
	FireTimeoutEvent FireTimeoutFunc[S, T, O]
	ApplyEffect      ApplyEffectFunc[P, S, M, T, O, B]

	ByzantineMessages []M
	TimeoutChance     int

	Oracle *Oracle
	Logger log.Logger
}

var (
	// ErrEmptyBuffer is returned when ReceiveOne is asked to deliver a
	// message to a process whose buffer does not contain it.
	ErrEmptyBuffer = errors.New("csmi: message not present in process buffer")
	// ErrNoActiveTimeout is returned when FireOne is asked to fire a
	// process's timeout but it has none active.
	ErrNoActiveTimeout = errors.New("csmi: process has no active timeout")
	// ErrNoStep is returned by Step/StepNoTimeout/StepAccelerated when
	// there is nothing left to do: every buffer is empty and no process
	// has an active timeout.
	ErrNoStep = errors.New("csmi: no message or timeout available to step")
)

func (h *Harness[P, S, M, T, O, B]) logger() log.Logger {
	if h.Logger == nil {
		return log.NewNopLogger()
	}
	return h.Logger
}

// ReceiveOne delivers m to p: removes m from p's buffer, runs
// receive_message, installs the returned state, and applies every
// returned output via ApplyEffect. Returns ErrEmptyBuffer if m is not
// actually buffered for p.
func (h *Harness[P, S, M, T, O, B]) ReceiveOne(p P, m M) error {
	if !h.Env.HasMessage(p, m) {
		return errors.Wrapf(ErrEmptyBuffer, "process %v, message %v", p, m)
	}
	h.Env.RemoveMessage(p, m)

	newState, outputs := h.ReceiveMessage(h.Env.State[p], m)
	h.Env.State[p] = newState
	for _, out := range outputs {
		h.ApplyEffect(h.Env, p, out)
	}

	h.Env.Record(StepRecord[P, M, T]{Process: p, Kind: MessageStep, Message: &m})
	level.Debug(h.logger()).Log("msg", "delivered message", "process", p, "message", m)
	return nil
}

// FireOne fires p's active timeout: clears it, runs fire_timeout_event,
// installs the returned state, and applies every returned output.
// Returns ErrNoActiveTimeout if p has no active timeout.
func (h *Harness[P, S, M, T, O, B]) FireOne(p P) error {
	t := h.Env.ActiveTimeout(p)
	if t == nil {
		return errors.Wrapf(ErrNoActiveTimeout, "process %v", p)
	}
	fired := *t
	h.Env.ClearTimeout(p)

	newState, outputs := h.FireTimeoutEvent(h.Env.State[p], fired)
	h.Env.State[p] = newState
	for _, out := range outputs {
		h.ApplyEffect(h.Env, p, out)
	}

	h.Env.Record(StepRecord[P, M, T]{Process: p, Kind: TimeoutStep, Timeout: &fired})
	level.Debug(h.logger()).Log("msg", "fired timeout", "process", p, "timeout", fired)
	return nil
}

// DeliverByzantine inserts a Byzantine candidate message directly into
// to's buffer, bypassing Broadcast's every-process fan-out: a faulty
// process may equivocate by sending different messages to different
// peers.
func (h *Harness[P, S, M, T, O, B]) DeliverByzantine(m M, to P) {
	h.Env.InsertMessage(to, m)
	h.Env.Record(StepRecord[P, M, T]{Process: to, Kind: ByzantineStep, Message: &m})
	level.Debug(h.logger()).Log("msg", "delivered byzantine message", "process", to, "message", m)
}

// pendingTimeouts returns every process with an active timeout, in the
// iteration order of Env.ActiveTimeouts, which Go does not fix from one
// call to the next; the result is not sorted.
func (h *Harness[P, S, M, T, O, B]) pendingTimeouts() []P {
	out := make([]P, 0, len(h.Env.ActiveTimeouts))
	for p := range h.Env.ActiveTimeouts {
		out = append(out, p)
	}
	return out
}

type pendingDelivery[P comparable, M comparable] struct {
	process P
	message M
}

func (h *Harness[P, S, M, T, O, B]) pendingDeliveries() []pendingDelivery[P, M] {
	var out []pendingDelivery[P, M]
	for _, p := range h.Env.Processes() {
		for _, m := range h.Env.BufferedMessages(p) {
			out = append(out, pendingDelivery[P, M]{process: p, message: m})
		}
	}
	return out
}

// stepBranch identifies one of the three branches Step chooses among.
type stepBranch uint8

const (
	timeoutBranch stepBranch = iota
	messageBranch
	byzantineBranch
)

// Step performs one nondeterministic interleaved step by picking exactly
// one of three enabled branches:
//
//  1. Timeout branch - enabled iff some process has an active timeout
//     AND a uniformly-drawn integer in [1,100] <= TimeoutChance.
//  2. Message branch - enabled iff at least one buffer is non-empty.
//  3. Byzantine branch - enabled iff the Byzantine-message pool is
//     non-empty.
//
// The enabled branches are decided first, then one is picked uniformly
// at random among them. Returns ErrNoStep if none are enabled.
func (h *Harness[P, S, M, T, O, B]) Step() error {
	timeouts := h.pendingTimeouts()
	deliveries := h.pendingDeliveries()

	var enabled []stepBranch
	if len(timeouts) > 0 && h.Oracle.Bool(h.TimeoutChance) {
		enabled = append(enabled, timeoutBranch)
	}
	if len(deliveries) > 0 {
		enabled = append(enabled, messageBranch)
	}
	if len(h.ByzantineMessages) > 0 {
		enabled = append(enabled, byzantineBranch)
	}
	if len(enabled) == 0 {
		return ErrNoStep
	}

	branch, _ := Pick(h.Oracle, enabled)
	switch branch {
	case timeoutBranch:
		p, _ := Pick(h.Oracle, timeouts)
		return h.FireOne(p)
	case messageBranch:
		d, _ := Pick(h.Oracle, deliveries)
		return h.ReceiveOne(d.process, d.message)
	default:
		m, _ := Pick(h.Oracle, h.ByzantineMessages)
		to, _ := Pick(h.Oracle, h.Env.Processes())
		h.DeliverByzantine(m, to)
		return h.ReceiveOne(to, m)
	}
}

// StepNoTimeout is Step restricted to the message-delivery branch alone:
// it never fires a timeout and never injects a Byzantine message, even
// if either is available.
func (h *Harness[P, S, M, T, O, B]) StepNoTimeout() error {
	deliveries := h.pendingDeliveries()
	if len(deliveries) == 0 {
		return ErrNoStep
	}
	d, _ := Pick(h.Oracle, deliveries)
	return h.ReceiveOne(d.process, d.message)
}

// StepAccelerated is Step without the Byzantine branch: it still
// interleaves message delivery and timeout firing one at a time, it just
// never injects a Byzantine candidate on its own. Use DeliverByzantine
// directly, or ReceiveMsgAccelerated/FireTimeoutAccelerated for the
// separate batching actions, to inject Byzantine traffic in an
// accelerated run.
func (h *Harness[P, S, M, T, O, B]) StepAccelerated() error {
	timeouts := h.pendingTimeouts()
	deliveries := h.pendingDeliveries()

	var enabled []stepBranch
	if len(timeouts) > 0 && h.Oracle.Bool(h.TimeoutChance) {
		enabled = append(enabled, timeoutBranch)
	}
	if len(deliveries) > 0 {
		enabled = append(enabled, messageBranch)
	}
	if len(enabled) == 0 {
		return ErrNoStep
	}

	branch, _ := Pick(h.Oracle, enabled)
	if branch == timeoutBranch {
		p, _ := Pick(h.Oracle, timeouts)
		return h.FireOne(p)
	}
	d, _ := Pick(h.Oracle, deliveries)
	return h.ReceiveOne(d.process, d.message)
}

// ReceiveMsgAccelerated nondeterministically chooses a non-empty subset
// of p's currently buffered messages and delivers them all in sequence
// in one atomic action.
func (h *Harness[P, S, M, T, O, B]) ReceiveMsgAccelerated(p P) error {
	msgs := h.Env.BufferedMessages(p)
	if len(msgs) == 0 {
		return errors.Wrapf(ErrEmptyBuffer, "process %v has no buffered messages to drain", p)
	}
	subset := NonEmptySubset(h.Oracle, msgs)
	for _, m := range subset {
		if !h.Env.HasMessage(p, m) {
			// Only ReceiveOne removes messages from a buffer, so each
			// chosen message is still present here; skip anything that
			// is not rather than erroring.
			continue
		}
		if err := h.ReceiveOne(p, m); err != nil {
			return err
		}
	}
	return nil
}

// FireTimeoutAccelerated fires timeouts for a nondeterministically
// chosen non-empty subset of processes that currently have one active
// at once.
func (h *Harness[P, S, M, T, O, B]) FireTimeoutAccelerated() error {
	pending := h.pendingTimeouts()
	if len(pending) == 0 {
		return errors.Wrap(ErrNoActiveTimeout, "no process has an active timeout")
	}
	subset := NonEmptySubset(h.Oracle, pending)
	for _, p := range subset {
		if h.Env.ActiveTimeout(p) == nil {
			continue
		}
		if err := h.FireOne(p); err != nil {
			return err
		}
	}
	return nil
}
