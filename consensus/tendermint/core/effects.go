package core

import (
	"github.com/autonity/tendermint-sim/consensus/tendermint/accountability"
	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
	"github.com/autonity/tendermint-sim/csmi"
)

// Env is the concrete CSMI environment type for the Tendermint
// instantiation: processes are message.Node, per-process state is
// LocalState, messages are message.Message, timeouts are
// message.TimeoutEvent, and the shared bookkeeping is
// accountability.Bookkeeping.
type Env = csmi.Environment[message.Node, LocalState, message.Message, message.TimeoutEvent, accountability.Bookkeeping]

// Harness is the concrete CSMI harness type for the Tendermint
// instantiation.
type Harness = csmi.Harness[message.Node, LocalState, message.Message, message.TimeoutEvent, message.Output, accountability.Bookkeeping]

// ApplyEffect is the Tendermint apply_effect function: it translates one
// transition output into an environment mutation.
// Broadcast fans the message out to every process's buffer; StartTimeout
// arms self's timeout, replacing the existing one only if
// message.ShouldReplace says so; CollectEvidence folds the message into
// the shared bookkeeping's evidence sets; Breakpoint latches the
// bookkeeping's debug flag.
func ApplyEffect(env *Env, self message.Node, out message.Output) {
	switch out.Kind {
	case message.BroadcastOutput:
		env.Broadcast(out.Msg)
	case message.StartTimeoutOutput:
		env.SetTimeout(self, out.Timeout, message.ShouldReplace)
	case message.CollectEvidenceOutput:
		env.Bookkeeping.Record(out.Msg)
	case message.BreakpointOutput:
		env.Bookkeeping.Breakpoint = true
	}
}

// NewHarness wires ReceiveMessage, FireTimeoutEvent and ApplyEffect
// against cfg into a ready-to-step Harness over env.
func NewHarness(cfg config.Config, env *Env, byzantineMessages []message.Message, timeoutChance int, oracle *csmi.Oracle) *Harness {
	return &Harness{
		Env: env,
		ReceiveMessage: func(s LocalState, m message.Message) (LocalState, []message.Output) {
			res := ReceiveMessage(cfg, s, m)
			return res.State, res.Outputs
		},
		FireTimeoutEvent: func(s LocalState, t message.TimeoutEvent) (LocalState, []message.Output) {
			res := FireTimeoutEvent(cfg, s, t)
			return res.State, res.Outputs
		},
		ApplyEffect:       ApplyEffect,
		ByzantineMessages: byzantineMessages,
		TimeoutChance:     timeoutChance,
		Oracle:            oracle,
	}
}
