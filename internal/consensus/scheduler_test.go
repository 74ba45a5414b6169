package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

type fakeLocks struct {
	mu       sync.Mutex
	acquired []string
	held     map[string]bool
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

func newTestScheduler(cfg SchedulerConfig, propMarkets, dispMarkets *fakeMarkets, votes *fakeVotes, chain *fakeChain) *Scheduler {
	proposal := newProposalAggregator(propMarkets, votes, chain)
	dispute := newDisputeAggregator(dispMarkets, votes, chain)
	return NewScheduler(cfg, proposal, dispute, testLogger())
}

func TestRunNowProposalOnly(t *testing.T) {
	propMarkets := &fakeMarkets{markets: []domain.Market{proposalMarket("m1", "addr1")}}
	dispMarkets := &fakeMarkets{markets: []domain.Market{
		disputedMarket("m2", "addr2", boolPtr(true), 72*time.Hour),
	}}
	votes := &fakeVotes{
		proposal: map[string]domain.VoteTally{"m1": {Likes: 10, Total: 10}},
		dispute:  map[string]domain.VoteTally{"m2": {Likes: 10, Total: 10}},
	}
	chain := &fakeChain{}

	sched := newTestScheduler(SchedulerConfig{}, propMarkets, dispMarkets, votes, chain)
	require.NoError(t, sched.RunNow(context.Background(), "proposal"))

	assert.Len(t, chain.approves, 1)
	assert.Empty(t, chain.finalizes, "dispute phase must not fire")
}

func TestRunNowAllFiresBothPhases(t *testing.T) {
	propMarkets := &fakeMarkets{markets: []domain.Market{proposalMarket("m1", "addr1")}}
	dispMarkets := &fakeMarkets{markets: []domain.Market{
		disputedMarket("m2", "addr2", boolPtr(true), 72*time.Hour),
	}}
	votes := &fakeVotes{
		proposal: map[string]domain.VoteTally{"m1": {Likes: 10, Total: 10}},
		dispute:  map[string]domain.VoteTally{"m2": {Likes: 10, Total: 10}},
	}
	chain := &fakeChain{}

	sched := newTestScheduler(SchedulerConfig{}, propMarkets, dispMarkets, votes, chain)
	require.NoError(t, sched.RunNow(context.Background(), "all"))

	assert.Len(t, chain.approves, 1)
	assert.Len(t, chain.finalizes, 1)
}

func TestRunNowUnknownKind(t *testing.T) {
	sched := newTestScheduler(SchedulerConfig{}, &fakeMarkets{}, &fakeMarkets{}, &fakeVotes{}, &fakeChain{})
	err := sched.RunNow(context.Background(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown aggregator "bogus"`)
}

func TestRunNowSkipsWhenPeerHoldsLock(t *testing.T) {
	propMarkets := &fakeMarkets{markets: []domain.Market{proposalMarket("m1", "addr1")}}
	votes := &fakeVotes{proposal: map[string]domain.VoteTally{"m1": {Likes: 10, Total: 10}}}
	chain := &fakeChain{}
	locks := &fakeLocks{held: map[string]bool{"consensus:proposal": true}}

	sched := newTestScheduler(SchedulerConfig{Locks: locks}, propMarkets, &fakeMarkets{}, votes, chain)
	require.NoError(t, sched.RunNow(context.Background(), "proposal"))

	assert.Empty(t, chain.approves, "peer holds the lock, pass is skipped")
}

func TestRunNowAcquiresPerPhaseLock(t *testing.T) {
	locks := &fakeLocks{held: map[string]bool{}}
	sched := newTestScheduler(SchedulerConfig{Locks: locks}, &fakeMarkets{}, &fakeMarkets{}, &fakeVotes{}, &fakeChain{})

	require.NoError(t, sched.RunNow(context.Background(), "all"))
	assert.ElementsMatch(t, []string{"consensus:proposal", "consensus:dispute"}, locks.acquired)
}

func TestStatusReportsLastRun(t *testing.T) {
	propMarkets := &fakeMarkets{markets: []domain.Market{proposalMarket("m1", "addr1")}}
	votes := &fakeVotes{proposal: map[string]domain.VoteTally{"m1": {Likes: 10, Total: 10}}}
	sched := newTestScheduler(SchedulerConfig{Interval: time.Minute}, propMarkets, &fakeMarkets{}, votes, &fakeChain{})

	st := sched.Status()
	assert.Equal(t, "1m0s", st.Interval)
	assert.Nil(t, st.ProposalLastRun)
	assert.Equal(t, 7000, st.ProposalBpsFloor)
	assert.Equal(t, 6000, st.DisputeBpsFloor)

	require.NoError(t, sched.RunNow(context.Background(), "all"))

	st = sched.Status()
	require.NotNil(t, st.ProposalLastRun)
	assert.Equal(t, 1, st.ProposalLastRun.Settled)
	require.NotNil(t, st.DisputeLastRun)
	assert.Equal(t, 0, st.DisputeLastRun.Processed)
	assert.False(t, st.ProposalRunning)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	sched := newTestScheduler(SchedulerConfig{Interval: time.Hour}, &fakeMarkets{}, &fakeMarkets{}, &fakeVotes{}, &fakeChain{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	// Let the immediate first pass complete, then stop.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
