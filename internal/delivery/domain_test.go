package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:   {StatusInTransit, StatusCanceled},
		StatusInTransit: {StatusDelivered, StatusCanceled},
		StatusDelivered: {},
		StatusCanceled:  {},
	}
	all := []Status{StatusPending, StatusInTransit, StatusDelivered, StatusCanceled}
	for from, targets := range legal {
		allowed := make(map[Status]bool, len(targets))
		for _, target := range targets {
			allowed[target] = true
		}
		for _, to := range all {
			require.Equal(t, allowed[to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	require.False(t, StatusPending.IsTerminal())
	require.False(t, StatusInTransit.IsTerminal())
	require.True(t, StatusDelivered.IsTerminal())
	require.True(t, StatusCanceled.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	require.True(t, StatusInTransit.IsValid())
	require.False(t, Status("returned").IsValid())
}

func TestComputeTotals(t *testing.T) {
	amount, lines := computeTotals([]ItemInput{
		{ProductID: 1, Quantity: 2, UnitPriceCents: 10},
		{ProductID: 2, Quantity: 1, UnitPriceCents: 5},
	})
	require.Equal(t, int64(25), amount)
	require.Equal(t, int64(2), lines)

	amount, lines = computeTotals(nil)
	require.Zero(t, amount)
	require.Zero(t, lines)
}
