package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

func testMeta() domain.EventMeta {
	return domain.EventMeta{
		TxSignature: "tx-1",
		Slot:        42,
		BlockTime:   time.Unix(1_700_000_000, 0).UTC(),
	}
}

// --- fakes -----------------------------------------------------------------

type fakeEvents struct {
	seen    map[string]bool
	records []domain.EventRecord
	err     error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{seen: map[string]bool{}}
}

func (f *fakeEvents) Record(ctx context.Context, rec domain.EventRecord) error {
	if f.err != nil {
		return f.err
	}
	key := rec.TxSignature + "/" + string(rec.EventType)
	if f.seen[key] {
		return domain.ErrDuplicate
	}
	f.seen[key] = true
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeEvents) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.EventRecord, error) {
	return nil, nil
}

func (f *fakeEvents) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeEvents) Count(ctx context.Context) (int64, error) {
	return int64(len(f.records)), nil
}

type transitionCall struct {
	id  string
	to  domain.MarketState
	mut domain.MarketMutation
}

type fakeMarkets struct {
	markets     map[string]domain.Market // by chain address
	created     []domain.Market
	transitions []transitionCall
	transErr    error
	volume      map[string]float64
}

func newFakeMarkets(ms ...domain.Market) *fakeMarkets {
	f := &fakeMarkets{markets: map[string]domain.Market{}, volume: map[string]float64{}}
	for _, m := range ms {
		f.markets[m.ChainAddress] = m
	}
	return f
}

func (f *fakeMarkets) Create(ctx context.Context, m domain.Market) error {
	if _, ok := f.markets[m.ChainAddress]; ok {
		return domain.ErrDuplicate
	}
	f.markets[m.ChainAddress] = m
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	for _, m := range f.markets {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeMarkets) GetByChainAddress(ctx context.Context, addr string) (domain.Market, error) {
	m, ok := f.markets[addr]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarkets) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (f *fakeMarkets) Transition(ctx context.Context, id string, to domain.MarketState, mut domain.MarketMutation) error {
	if f.transErr != nil {
		return f.transErr
	}
	f.transitions = append(f.transitions, transitionCall{id: id, to: to, mut: mut})
	return nil
}

func (f *fakeMarkets) SetPausedBulk(ctx context.Context, state domain.MarketState, paused bool) (int64, error) {
	return 0, nil
}

func (f *fakeMarkets) AddVolume(ctx context.Context, id string, delta float64) error {
	f.volume[id] += delta
	return nil
}

func (f *fakeMarkets) Count(ctx context.Context) (int64, error) { return 0, nil }

type fakeVoteStore struct {
	votes []domain.Vote
	err   error
}

func (f *fakeVoteStore) Insert(ctx context.Context, v domain.Vote) error {
	if f.err != nil {
		return f.err
	}
	f.votes = append(f.votes, v)
	return nil
}

func (f *fakeVoteStore) TallyProposal(ctx context.Context, marketID string) (domain.VoteTally, error) {
	return domain.VoteTally{}, nil
}

func (f *fakeVoteStore) TallyDispute(ctx context.Context, marketID string, round int) (domain.VoteTally, error) {
	return domain.VoteTally{}, nil
}

type fakeTrades struct {
	trades []domain.Trade
}

func (f *fakeTrades) Insert(ctx context.Context, t domain.Trade) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeTrades) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}

type fakeAdmin struct {
	broadcasts []bool
	touched    int64
	dup        bool
}

func (f *fakeAdmin) PauseBroadcast(ctx context.Context, rec domain.EventRecord, paused bool) (int64, error) {
	if f.dup {
		return 0, domain.ErrDuplicate
	}
	f.broadcasts = append(f.broadcasts, paused)
	return f.touched, nil
}

type fakeChainConfig struct {
	stored *domain.ChainConfig
}

func (f *fakeChainConfig) Get(ctx context.Context) (domain.ChainConfig, error) {
	if f.stored == nil {
		return domain.ChainConfig{}, domain.ErrNotFound
	}
	return *f.stored, nil
}

func (f *fakeChainConfig) Upsert(ctx context.Context, cfg domain.ChainConfig) error {
	f.stored = &cfg
	return nil
}

// --- market writer ---------------------------------------------------------

func activeMarket(id, addr string) domain.Market {
	return domain.Market{ID: id, ChainAddress: addr, State: domain.MarketStateActive}
}

func TestMarketWriterCreates(t *testing.T) {
	markets := newFakeMarkets()
	events := newFakeEvents()
	w := NewMarketWriter(markets, events, testLogger())

	res := w.Handle(context.Background(), domain.MarketCreated{
		Market:    "addr1",
		Creator:   "creator1",
		Question:  "Will it ship?",
		Timestamp: 1_700_000_000,
	}, testMeta())

	assert.True(t, res.Success)
	assert.False(t, res.Duplicate)
	require.Len(t, markets.created, 1)
	m := markets.created[0]
	assert.Equal(t, domain.MarketStateProposed, m.State)
	assert.NotEmpty(t, m.ID)
	require.Len(t, events.records, 1)
	assert.Equal(t, domain.EventMarketCreated, events.records[0].EventType)
}

func TestMarketWriterDuplicateEventIsNoOp(t *testing.T) {
	markets := newFakeMarkets()
	events := newFakeEvents()
	w := NewMarketWriter(markets, events, testLogger())
	evt := domain.MarketCreated{Market: "addr1", Creator: "c", Question: "q"}

	first := w.Handle(context.Background(), evt, testMeta())
	second := w.Handle(context.Background(), evt, testMeta())

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Len(t, markets.created, 1, "side effects must not repeat")
}

func TestMarketWriterTransitions(t *testing.T) {
	markets := newFakeMarkets(activeMarket("m1", "addr1"))
	events := newFakeEvents()
	w := NewMarketWriter(markets, events, testLogger())

	res := w.Handle(context.Background(), domain.MarketResolved{
		Market:          "addr1",
		ProposedOutcome: boolPtr(true),
		Timestamp:       1_700_000_100,
	}, testMeta())

	assert.True(t, res.Success)
	require.Len(t, markets.transitions, 1)
	tr := markets.transitions[0]
	assert.Equal(t, "m1", tr.id)
	assert.Equal(t, domain.MarketStateResolving, tr.to)
	require.NotNil(t, *tr.mut.ProposedOutcome)
	assert.True(t, **tr.mut.ProposedOutcome)
	assert.NotNil(t, tr.mut.ResolutionProposedAt)
}

func TestMarketWriterAbsorbsOutOfOrderTransition(t *testing.T) {
	markets := newFakeMarkets(activeMarket("m1", "addr1"))
	markets.transErr = domain.ErrInvalidTransition
	events := newFakeEvents()
	w := NewMarketWriter(markets, events, testLogger())

	res := w.Handle(context.Background(), domain.MarketActivated{Market: "addr1"}, testMeta())

	assert.True(t, res.Success)
	assert.True(t, res.Duplicate)
}

func TestMarketWriterUnknownMarketFails(t *testing.T) {
	w := NewMarketWriter(newFakeMarkets(), newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.MarketActivated{Market: "missing"}, testMeta())

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "missing")
}

// --- trade writer ----------------------------------------------------------

func TestTradeWriterInsertsFillAndBumpsVolume(t *testing.T) {
	markets := newFakeMarkets(activeMarket("m1", "addr1"))
	trades := &fakeTrades{}
	w := NewTradeWriter(trades, markets, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.SharesBought{
		Market:    "addr1",
		Trader:    "trader1",
		Outcome:   true,
		Shares:    5,
		Cost:      12.5,
		Timestamp: 1_700_000_000,
	}, testMeta())

	assert.True(t, res.Success)
	require.Len(t, trades.trades, 1)
	tr := trades.trades[0]
	assert.Equal(t, domain.TradeSideBuy, tr.Side)
	assert.Equal(t, 12.5, tr.Amount)
	assert.Equal(t, "tx-1", tr.TxSignature)
	assert.Equal(t, 12.5, markets.volume["m1"])
}

func TestTradeWriterClaimIsAuditOnly(t *testing.T) {
	markets := newFakeMarkets(activeMarket("m1", "addr1"))
	trades := &fakeTrades{}
	events := newFakeEvents()
	w := NewTradeWriter(trades, markets, events, testLogger())

	res := w.Handle(context.Background(), domain.WinningsClaimed{
		Market: "addr1", Claimer: "winner", Amount: 100,
	}, testMeta())

	assert.True(t, res.Success)
	assert.Empty(t, trades.trades)
	assert.Len(t, events.records, 1)
}

// --- vote writer -----------------------------------------------------------

func TestVoteWriterInsertsProposalVote(t *testing.T) {
	markets := newFakeMarkets(domain.Market{ID: "m1", ChainAddress: "addr1", State: domain.MarketStateProposed})
	votes := &fakeVoteStore{}
	w := NewVoteWriter(votes, markets, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.ProposalVoteSubmitted{
		Market: "addr1", Voter: "voter1", Approve: true,
	}, testMeta())

	assert.True(t, res.Success)
	require.Len(t, votes.votes, 1)
	v := votes.votes[0]
	assert.Equal(t, "m1", v.MarketID)
	assert.Equal(t, domain.VotePhaseProposal, v.Phase)
	assert.True(t, v.Choice)
	assert.Equal(t, 1, v.Weight, "zero weight defaults to 1")
}

func TestVoteWriterAbsorbsRepeatVote(t *testing.T) {
	markets := newFakeMarkets(domain.Market{ID: "m1", ChainAddress: "addr1", State: domain.MarketStateProposed})
	votes := &fakeVoteStore{err: domain.ErrDuplicate}
	w := NewVoteWriter(votes, markets, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.DisputeVoteSubmitted{
		Market: "addr1", Voter: "voter1", Agree: false, Round: 1,
	}, testMeta())

	assert.True(t, res.Success)
	assert.True(t, res.Duplicate)
}

func TestVoteWriterReconcilesProposalAggregation(t *testing.T) {
	markets := newFakeMarkets(domain.Market{ID: "m1", ChainAddress: "addr1", State: domain.MarketStateProposed})
	w := NewVoteWriter(&fakeVoteStore{}, markets, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.ProposalAggregated{
		Market: "addr1", Likes: 8, Dislikes: 2, ApprovalPercentage: 80, Approved: true,
	}, testMeta())

	assert.True(t, res.Success)
	require.Len(t, markets.transitions, 1)
	tr := markets.transitions[0]
	assert.Equal(t, domain.MarketStateApproved, tr.to)
	assert.Equal(t, 8, *tr.mut.ProposalLikes)
	assert.Equal(t, 10, *tr.mut.ProposalTotal)
}

func TestVoteWriterReconcilesDisputeAggregation(t *testing.T) {
	markets := newFakeMarkets(domain.Market{ID: "m1", ChainAddress: "addr1", State: domain.MarketStateDisputed})
	w := NewVoteWriter(&fakeVoteStore{}, markets, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.DisputeAggregated{
		Market: "addr1", Agrees: 6, Disagrees: 4,
		DisputeSucceeded: true, FinalOutcome: boolPtr(false),
	}, testMeta())

	assert.True(t, res.Success)
	require.Len(t, markets.transitions, 1)
	tr := markets.transitions[0]
	assert.Equal(t, domain.MarketStateFinalized, tr.to)
	require.NotNil(t, *tr.mut.FinalOutcome)
	assert.False(t, **tr.mut.FinalOutcome)
}

func TestVoteWriterConvergedAggregationIsNoOp(t *testing.T) {
	markets := newFakeMarkets(domain.Market{ID: "m1", ChainAddress: "addr1", State: domain.MarketStateApproved})
	markets.transErr = domain.ErrInvalidTransition
	w := NewVoteWriter(&fakeVoteStore{}, markets, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.ProposalAggregated{
		Market: "addr1", Likes: 8, Dislikes: 2, Approved: true,
	}, testMeta())

	assert.True(t, res.Success)
	assert.True(t, res.Duplicate)
}

// --- admin writer ----------------------------------------------------------

func TestAdminWriterBroadcastsPause(t *testing.T) {
	admin := &fakeAdmin{touched: 3}
	w := NewAdminWriter(admin, &fakeChainConfig{}, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.EmergencyPauseToggled{
		Paused: true, Authority: "auth1",
	}, testMeta())

	assert.True(t, res.Success)
	require.Len(t, admin.broadcasts, 1)
	assert.True(t, admin.broadcasts[0])
}

func TestAdminWriterPauseDuplicate(t *testing.T) {
	admin := &fakeAdmin{dup: true}
	w := NewAdminWriter(admin, &fakeChainConfig{}, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.EmergencyPauseToggled{Paused: true}, testMeta())

	assert.True(t, res.Success)
	assert.True(t, res.Duplicate)
	assert.Empty(t, admin.broadcasts)
}

func TestAdminWriterMirrorsConfig(t *testing.T) {
	cfgStore := &fakeChainConfig{}
	w := NewAdminWriter(&fakeAdmin{}, cfgStore, newFakeEvents(), testLogger())

	res := w.Handle(context.Background(), domain.ConfigUpdated{
		ProposalThresholdBps: 7500,
		DisputeThresholdBps:  6500,
		DisputeWindowSecs:    86400,
	}, testMeta())

	assert.True(t, res.Success)
	require.NotNil(t, cfgStore.stored)
	assert.Equal(t, 7500, cfgStore.stored.ProposalThresholdBps)
	assert.Equal(t, 24*time.Hour, cfgStore.stored.DisputeWindow)
}

// --- router ----------------------------------------------------------------

func TestRouterDispatchesByGroup(t *testing.T) {
	markets := newFakeMarkets()
	events := newFakeEvents()
	marketW := NewMarketWriter(markets, events, testLogger())
	tradeW := NewTradeWriter(&fakeTrades{}, markets, events, testLogger())
	voteW := NewVoteWriter(&fakeVoteStore{}, markets, events, testLogger())
	adminW := NewAdminWriter(&fakeAdmin{}, &fakeChainConfig{}, events, testLogger())
	r := NewRouter(marketW, tradeW, voteW, adminW, testLogger())

	res := r.Dispatch(context.Background(), domain.MarketCreated{
		Market: "addr1", Creator: "c", Question: "q",
	}, testMeta())
	assert.True(t, res.Success)
	assert.Len(t, markets.created, 1)

	res = r.Dispatch(context.Background(), domain.EmergencyPauseToggled{Paused: true}, testMeta())
	assert.True(t, res.Success)
}

func TestRouterProcessTransaction(t *testing.T) {
	markets := newFakeMarkets()
	events := newFakeEvents()
	marketW := NewMarketWriter(markets, events, testLogger())
	tradeW := NewTradeWriter(&fakeTrades{}, markets, events, testLogger())
	voteW := NewVoteWriter(&fakeVoteStore{}, markets, events, testLogger())
	adminW := NewAdminWriter(&fakeAdmin{}, &fakeChainConfig{}, events, testLogger())
	r := NewRouter(marketW, tradeW, voteW, adminW, testLogger())
	p := NewParser(testProgramID, testLogger())

	tx := domain.TransactionDescriptor{
		Signature: "tx-99",
		Slot:      7,
		BlockTime: 1_700_000_000,
		Logs: wrapLogs(
			eventLine(t, "MarketCreated", domain.MarketCreated{Market: "addr1", Creator: "c", Question: "q"}),
		),
	}

	results := r.ProcessTransaction(context.Background(), p, tx)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "tx-99", results[0].TxSignature)
}

func boolPtr(v bool) *bool { return &v }

// writer fail path when the audit insert itself fails
func TestWriterFailsWhenAuditUnavailable(t *testing.T) {
	events := newFakeEvents()
	events.err = errors.New("db down")
	w := NewMarketWriter(newFakeMarkets(), events, testLogger())

	res := w.Handle(context.Background(), domain.MarketCreated{Market: "a"}, testMeta())
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "db down")
}
