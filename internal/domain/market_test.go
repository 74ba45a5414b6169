package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to MarketState
		want     bool
	}{
		{MarketStateProposed, MarketStateApproved, true},
		{MarketStateProposed, MarketStateCancelled, true},
		{MarketStateProposed, MarketStateActive, false},
		{MarketStateApproved, MarketStateActive, true},
		{MarketStateApproved, MarketStateCancelled, true},
		{MarketStateActive, MarketStateResolving, true},
		{MarketStateActive, MarketStateCancelled, false},
		{MarketStateResolving, MarketStateDisputed, true},
		{MarketStateResolving, MarketStateFinalized, true},
		{MarketStateDisputed, MarketStateFinalized, true},
		{MarketStateDisputed, MarketStateResolving, false},
		{MarketStateFinalized, MarketStateDisputed, false},
		{MarketStateCancelled, MarketStateProposed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]MarketState{MarketStateResolving, MarketStateDisputed},
		TransitionSources(MarketStateFinalized))
	assert.ElementsMatch(t,
		[]MarketState{MarketStateProposed, MarketStateApproved},
		TransitionSources(MarketStateCancelled))
	assert.Empty(t, TransitionSources(MarketStateProposed),
		"nothing transitions back into the initial state")
}

func TestDisputeWindowClosed(t *testing.T) {
	now := time.Now()
	window := 48 * time.Hour

	m := Market{}
	assert.False(t, m.DisputeWindowClosed(window, now), "no dispute recorded")

	early := now.Add(-time.Hour)
	m.DisputeInitiatedAt = &early
	assert.False(t, m.DisputeWindowClosed(window, now))

	exact := now.Add(-window)
	m.DisputeInitiatedAt = &exact
	assert.True(t, m.DisputeWindowClosed(window, now), "window close is inclusive")

	late := now.Add(-window - time.Hour)
	m.DisputeInitiatedAt = &late
	assert.True(t, m.DisputeWindowClosed(window, now))
}
