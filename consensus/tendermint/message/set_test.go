package message_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autonity/tendermint-sim/consensus/tendermint/message"
)

func TestSetInsertIsIdempotent(t *testing.T) {
	s := message.NewSet()
	m := message.NewVoteForValue(message.PreVoteKind, "p1", 0, message.ID("v0"))

	s.Insert(m)
	s.Insert(m)

	require.Equal(t, 1, s.Len())
	require.True(t, s.Contains(m))
}

func TestSetCloneIsIndependent(t *testing.T) {
	s := message.NewSet()
	m := message.NewVoteForValue(message.PreVoteKind, "p1", 0, message.ID("v0"))
	s.Insert(m)

	clone := s.Clone()
	clone.Insert(message.NewVoteForValue(message.PreVoteKind, "p2", 0, message.ID("v0")))

	require.Equal(t, 1, s.Len())
	require.Equal(t, 2, clone.Len())
}

func TestSetFilter(t *testing.T) {
	s := message.NewSet()
	s.Insert(message.NewVoteForValue(message.PreVoteKind, "p1", 0, message.ID("v0")))
	s.Insert(message.NewVoteForValue(message.PreVoteKind, "p2", 1, message.ID("v0")))
	s.Insert(message.NewVoteForNil(message.PreVoteKind, "p3", 0))

	round0 := s.Filter(func(m message.Message) bool { return m.Round == 0 })
	require.Len(t, round0, 2)
}
