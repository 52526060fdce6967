package csmi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autonity/tendermint-sim/csmi"
)

func TestOracleIsDeterministicGivenASeed(t *testing.T) {
	a := csmi.NewOracle(42)
	b := csmi.NewOracle(42)

	for i := 0; i < 50; i++ {
		require.Equal(t, a.IntN(100), b.IntN(100))
	}
}

func TestBoolClampsPercentage(t *testing.T) {
	o := csmi.NewOracle(1)
	for i := 0; i < 20; i++ {
		require.False(t, o.Bool(0))
		require.True(t, o.Bool(100))
	}
}

func TestPickReturnsFalseOnEmpty(t *testing.T) {
	o := csmi.NewOracle(1)
	_, ok := csmi.Pick(o, []int{})
	require.False(t, ok)
}

func TestPickReturnsAnElementOfTheSlice(t *testing.T) {
	o := csmi.NewOracle(7)
	items := []string{"a", "b", "c"}
	for i := 0; i < 20; i++ {
		v, ok := csmi.Pick(o, items)
		require.True(t, ok)
		require.Contains(t, items, v)
	}
}

func TestNonEmptySubsetIsNeverEmptyAndIsASubset(t *testing.T) {
	o := csmi.NewOracle(3)
	items := []int{1, 2, 3, 4, 5}
	for i := 0; i < 30; i++ {
		subset := csmi.NonEmptySubset(o, items)
		require.NotEmpty(t, subset)
		for _, v := range subset {
			require.Contains(t, items, v)
		}
	}
}

func TestNonEmptySubsetOfEmptyIsNil(t *testing.T) {
	o := csmi.NewOracle(3)
	require.Nil(t, csmi.NonEmptySubset(o, []int{}))
}
