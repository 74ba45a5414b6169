package domain

import "time"

// EventType names one kind of on-chain event emitted by the market program.
type EventType string

// The closed set of event kinds this pipeline understands. Unknown names
// arriving on the wire are dropped by the parser for forward compatibility.
const (
	// Market lifecycle group.
	EventMarketCreated    EventType = "MarketCreated"
	EventMarketActivated  EventType = "MarketActivated"
	EventMarketResolved   EventType = "MarketResolved"
	EventDisputeInitiated EventType = "DisputeInitiated"
	EventMarketFinalized  EventType = "MarketFinalized"
	EventMarketCancelled  EventType = "MarketCancelled"

	// Trading group.
	EventSharesBought       EventType = "SharesBought"
	EventSharesSold         EventType = "SharesSold"
	EventWinningsClaimed    EventType = "WinningsClaimed"
	EventLiquidityWithdrawn EventType = "LiquidityWithdrawn"

	// Voting group.
	EventProposalVoteSubmitted EventType = "ProposalVoteSubmitted"
	EventDisputeVoteSubmitted  EventType = "DisputeVoteSubmitted"
	EventProposalAggregated    EventType = "ProposalAggregated"
	EventDisputeAggregated     EventType = "DisputeAggregated"

	// Admin group.
	EventEmergencyPauseToggled EventType = "EmergencyPauseToggled"
	EventConfigUpdated         EventType = "ConfigUpdated"
)

// ChainEvent is a decoded on-chain event. One struct implements it per
// EventType; the ingest router switches exhaustively over the concrete
// types.
type ChainEvent interface {
	Type() EventType
}

// TransactionDescriptor is one entry in a webhook batch: a confirmed
// transaction with the raw log lines attributable to it.
type TransactionDescriptor struct {
	Signature string   `json:"signature"`
	Slot      uint64   `json:"slot"`
	BlockTime int64    `json:"blockTime"`
	Logs      []string `json:"logs"`
}

// EventMeta carries the transaction context an event was extracted from.
type EventMeta struct {
	TxSignature string
	Slot        uint64
	BlockTime   time.Time
}

// EventRecord is one row of the event-audit table, keyed by
// (tx_signature, event_type). Re-delivery of the same event is detected by
// the unique constraint and treated as a successful no-op.
type EventRecord struct {
	TxSignature string
	EventType   EventType
	Payload     []byte // raw decoded JSON payload
	Slot        uint64
	BlockTime   time.Time
	ProcessedAt time.Time
}

// WriteResult is the ephemeral outcome of processing one event through a
// typed writer. It is aggregated for batch accounting and never persisted.
type WriteResult struct {
	Success     bool
	Duplicate   bool
	EventType   EventType
	TxSignature string
	Duration    time.Duration
	Err         string
}

// --------------------------------------------------------------------------
// Market lifecycle events
// --------------------------------------------------------------------------

// MarketCreated is emitted when a market proposal is created on-chain.
type MarketCreated struct {
	Market    string `json:"market"` // on-chain account address
	Creator   string `json:"creator"`
	Question  string `json:"question"`
	Timestamp int64  `json:"timestamp"`
}

func (MarketCreated) Type() EventType { return EventMarketCreated }

// MarketActivated is emitted when trading opens on an approved market.
type MarketActivated struct {
	Market    string `json:"market"`
	Timestamp int64  `json:"timestamp"`
}

func (MarketActivated) Type() EventType { return EventMarketActivated }

// MarketResolved is emitted when a resolver proposes an outcome, opening
// the dispute period.
type MarketResolved struct {
	Market          string `json:"market"`
	Resolver        string `json:"resolver"`
	ProposedOutcome *bool  `json:"proposedOutcome"` // nil = INVALID
	Timestamp       int64  `json:"timestamp"`
}

func (MarketResolved) Type() EventType { return EventMarketResolved }

// DisputeInitiated is emitted when a user disputes a proposed resolution.
type DisputeInitiated struct {
	Market    string `json:"market"`
	Initiator string `json:"initiator"`
	Round     int    `json:"round"`
	Timestamp int64  `json:"timestamp"`
}

func (DisputeInitiated) Type() EventType { return EventDisputeInitiated }

// MarketFinalized is emitted when the final outcome is committed on-chain.
type MarketFinalized struct {
	Market       string `json:"market"`
	FinalOutcome *bool  `json:"finalOutcome"` // nil = INVALID
	Agrees       int    `json:"agrees"`
	Disagrees    int    `json:"disagrees"`
	Timestamp    int64  `json:"timestamp"`
}

func (MarketFinalized) Type() EventType { return EventMarketFinalized }

// MarketCancelled is emitted when an admin cancels a market.
type MarketCancelled struct {
	Market    string `json:"market"`
	Authority string `json:"authority"`
	Timestamp int64  `json:"timestamp"`
}

func (MarketCancelled) Type() EventType { return EventMarketCancelled }

// --------------------------------------------------------------------------
// Trading events
// --------------------------------------------------------------------------

// SharesBought is emitted on a buy trade.
type SharesBought struct {
	Market    string  `json:"market"`
	Trader    string  `json:"trader"`
	Outcome   bool    `json:"outcome"` // true = YES shares
	Shares    float64 `json:"shares"`
	Cost      float64 `json:"cost"`
	Timestamp int64   `json:"timestamp"`
}

func (SharesBought) Type() EventType { return EventSharesBought }

// SharesSold is emitted on a sell trade.
type SharesSold struct {
	Market    string  `json:"market"`
	Trader    string  `json:"trader"`
	Outcome   bool    `json:"outcome"`
	Shares    float64 `json:"shares"`
	Proceeds  float64 `json:"proceeds"`
	Timestamp int64   `json:"timestamp"`
}

func (SharesSold) Type() EventType { return EventSharesSold }

// WinningsClaimed is emitted when a winner redeems shares after
// finalization.
type WinningsClaimed struct {
	Market    string  `json:"market"`
	Claimer   string  `json:"claimer"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

func (WinningsClaimed) Type() EventType { return EventWinningsClaimed }

// LiquidityWithdrawn is emitted when the creator withdraws residual
// liquidity from a terminal market.
type LiquidityWithdrawn struct {
	Market    string  `json:"market"`
	Creator   string  `json:"creator"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

func (LiquidityWithdrawn) Type() EventType { return EventLiquidityWithdrawn }

// --------------------------------------------------------------------------
// Voting events
// --------------------------------------------------------------------------

// ProposalVoteSubmitted is emitted when a user votes on a market proposal.
type ProposalVoteSubmitted struct {
	Market    string `json:"market"`
	Voter     string `json:"voter"`
	Approve   bool   `json:"approve"`
	Weight    int    `json:"weight"`
	Timestamp int64  `json:"timestamp"`
}

func (ProposalVoteSubmitted) Type() EventType { return EventProposalVoteSubmitted }

// DisputeVoteSubmitted is emitted when a user votes in a dispute round.
type DisputeVoteSubmitted struct {
	Market    string `json:"market"`
	Voter     string `json:"voter"`
	Agree     bool   `json:"agree"`
	Round     int    `json:"round"`
	Weight    int    `json:"weight"`
	Timestamp int64  `json:"timestamp"`
}

func (DisputeVoteSubmitted) Type() EventType { return EventDisputeVoteSubmitted }

// ProposalAggregated is emitted by the approval settlement instruction.
// The ingestion path uses it to converge local state with the on-chain
// decision, including the case where our own settlement call succeeded but
// the subsequent local update failed.
type ProposalAggregated struct {
	Market             string `json:"market"`
	Likes              int    `json:"likes"`
	Dislikes           int    `json:"dislikes"`
	ApprovalPercentage int    `json:"approvalPercentage"` // 0-100
	Approved           bool   `json:"approved"`
	Timestamp          int64  `json:"timestamp"`
}

func (ProposalAggregated) Type() EventType { return EventProposalAggregated }

// DisputeAggregated is emitted by the dispute finalize settlement
// instruction.
type DisputeAggregated struct {
	Market           string `json:"market"`
	Agrees           int    `json:"agrees"`
	Disagrees        int    `json:"disagrees"`
	DisputeSucceeded bool   `json:"disputeSucceeded"`
	FinalOutcome     *bool  `json:"finalOutcome"` // nil = INVALID
	Timestamp        int64  `json:"timestamp"`
}

func (DisputeAggregated) Type() EventType { return EventDisputeAggregated }

// --------------------------------------------------------------------------
// Admin events
// --------------------------------------------------------------------------

// EmergencyPauseToggled is emitted when the protocol pause switch flips.
// Processing it broadcasts the pause flag to every ACTIVE market.
type EmergencyPauseToggled struct {
	Paused    bool   `json:"paused"`
	Authority string `json:"authority"`
	Timestamp int64  `json:"timestamp"`
}

func (EmergencyPauseToggled) Type() EventType { return EventEmergencyPauseToggled }

// ConfigUpdated is emitted when the on-chain global config changes. The
// admin writer mirrors the governance parameters locally.
type ConfigUpdated struct {
	ProposalThresholdBps int   `json:"proposalThresholdBps"`
	DisputeThresholdBps  int   `json:"disputeThresholdBps"`
	DisputeWindowSecs    int64 `json:"disputeWindowSecs"`
	Timestamp            int64 `json:"timestamp"`
}

func (ConfigUpdated) Type() EventType { return EventConfigUpdated }
