package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists the off-chain market replica.
type MarketStore interface {
	// Create inserts a new market. Returns ErrDuplicate when a market with
	// the same chain address already exists.
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByChainAddress(ctx context.Context, addr string) (Market, error)
	// ListByState returns markets in the given state, oldest first.
	ListByState(ctx context.Context, state MarketState, opts ListOpts) ([]Market, error)

	// Transition advances a market's lifecycle state, applying the given
	// mutation. Returns ErrInvalidTransition if the market is not in a
	// state from which `to` is reachable.
	Transition(ctx context.Context, id string, to MarketState, mut MarketMutation) error

	// SetPausedBulk flips the pause flag on every market currently in the
	// given state. Returns the number of markets touched.
	SetPausedBulk(ctx context.Context, state MarketState, paused bool) (int64, error)

	AddVolume(ctx context.Context, id string, delta float64) error
	Count(ctx context.Context) (int64, error)
}

// MarketMutation carries the optional field updates applied together with a
// state transition. Nil fields are left untouched.
type MarketMutation struct {
	ProposalLikes    *int
	ProposalDislikes *int
	ProposalTotal    *int

	DisputeAgree    *int
	DisputeDisagree *int
	DisputeTotal    *int
	DisputeRound    *int

	ProposedOutcome **bool
	FinalOutcome    **bool

	ApprovedAt           *time.Time
	ActivatedAt          *time.Time
	ResolutionProposedAt *time.Time
	DisputeInitiatedAt   *time.Time
	FinalizedAt          *time.Time
}

// VoteTally is the aggregate of one market's votes in one phase (and round,
// for disputes). Weights are summed, so Likes+Dislikes == Total holds for
// weighted votes too.
type VoteTally struct {
	Likes    int // proposal: approve; dispute: agree
	Dislikes int // proposal: reject; dispute: disagree
	Total    int
}

// VoteStore persists governance votes.
type VoteStore interface {
	// Insert stores a vote. Returns ErrDuplicate when the voter has
	// already voted in this phase (and round, for dispute votes).
	Insert(ctx context.Context, v Vote) error
	// TallyProposal counts proposal votes for a market.
	TallyProposal(ctx context.Context, marketID string) (VoteTally, error)
	// TallyDispute counts dispute votes for a market and round.
	TallyDispute(ctx context.Context, marketID string, round int) (VoteTally, error)
}

// EventStore persists the event-audit table used for deduplication and
// tracing.
type EventStore interface {
	// Record inserts an event record. Returns ErrDuplicate when the
	// (tx_signature, event_type) pair is already present — the expected
	// re-delivery path, not a defect.
	Record(ctx context.Context, rec EventRecord) error
	// ListBefore returns processed records older than the cutoff, oldest
	// first, for archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]EventRecord, error)
	// DeleteBefore prunes records older than the cutoff and returns the
	// number removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists replicated trade fills.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
}

// AdminStore groups the admin-writer operations that must be atomic with
// respect to the triggering event's audit record.
type AdminStore interface {
	// PauseBroadcast records the pause-toggle event and, in the same
	// transaction, flips the pause flag on every market currently in the
	// ACTIVE state. Returns the number of markets touched, or
	// ErrDuplicate when the event was already processed (no markets are
	// touched in that case).
	PauseBroadcast(ctx context.Context, rec EventRecord, paused bool) (int64, error)
}

// ChainConfigStore persists the on-chain global config mirror.
type ChainConfigStore interface {
	Get(ctx context.Context) (ChainConfig, error)
	// Upsert writes the governance parameters (thresholds, dispute
	// window). The Paused field is ignored: the pause flag is maintained
	// only through AdminStore.PauseBroadcast.
	Upsert(ctx context.Context, cfg ChainConfig) error
}
