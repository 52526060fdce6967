package scenario

import (
	"github.com/autonity/tendermint-sim/consensus/tendermint/config"
	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

// FiveNodeConfig is the standard fixture used by the end-to-end
// scenarios: F=1, CORRECT={p1,p2,p3}, FAULTY={p4}, PROPOSER = {0->p1,
// 1->p2, 2->p3, 3->p4, 4->p1}, VALUES = {0->v0, 1->v1, 2->v0, 3->v2,
// 4->v0}.
func FiveNodeConfig() config.Config {
	proposers := map[message.Round]message.Node{
		0: "p1", 1: "p2", 2: "p3", 3: "p4", 4: "p1",
	}
	return config.Config{
		F:       1,
		Correct: config.NodeSet("p1", "p2", "p3"),
		Faulty:  config.NodeSet("p4"),
		Proposer: func(r message.Round) message.Node {
			return proposers[r]
		},
		Values: map[message.Round]message.Value{
			0: "v0", 1: "v1", 2: "v0", 3: "v2", 4: "v0",
		},
		TimeoutChance: 50,
	}
}

// TwoFaultyConfig is the disagreement fixture used by the end-to-end
// scenarios: F=1, CORRECT={p1,p2}, FAULTY={p3,p4}, PROPOSER(0)=p3. Rounds 1 and
// 2 (never reached in the scenario - it plays out entirely at round 0)
// exist only so that v0 and v1 are valid values despite round 0's
// proposer being faulty: VALUES(1)=v0 with PROPOSER(1)=p1 (correct) and
// VALUES(2)=v1 with PROPOSER(2)=p2 (correct) put both in ValidValues.
func TwoFaultyConfig() config.Config {
	proposers := map[message.Round]message.Node{
		0: "p3", 1: "p1", 2: "p2",
	}
	return config.Config{
		F:       1,
		Correct: config.NodeSet("p1", "p2"),
		Faulty:  config.NodeSet("p3", "p4"),
		Proposer: func(r message.Round) message.Node {
			return proposers[r]
		},
		Values: map[message.Round]message.Value{
			0: "v0", 1: "v0", 2: "v1",
		},
		TimeoutChance: 50,
	}
}
