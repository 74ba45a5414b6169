package domain

import "time"

// MarketState represents the lifecycle state of a prediction market.
//
// Transitions:
//
//	PROPOSED → APPROVED → ACTIVE → RESOLVING → DISPUTED → FINALIZED
//	                              → (skip DISPUTED)     → FINALIZED
//	PROPOSED / APPROVED → CANCELLED (admin only, terminal)
type MarketState string

const (
	MarketStateProposed  MarketState = "proposed"
	MarketStateApproved  MarketState = "approved"
	MarketStateActive    MarketState = "active"
	MarketStateResolving MarketState = "resolving"
	MarketStateDisputed  MarketState = "disputed"
	MarketStateFinalized MarketState = "finalized"
	MarketStateCancelled MarketState = "cancelled"
)

// validTransitions maps each state to the set of states it may advance to.
var validTransitions = map[MarketState][]MarketState{
	MarketStateProposed:  {MarketStateApproved, MarketStateCancelled},
	MarketStateApproved:  {MarketStateActive, MarketStateCancelled},
	MarketStateActive:    {MarketStateResolving},
	MarketStateResolving: {MarketStateDisputed, MarketStateFinalized},
	MarketStateDisputed:  {MarketStateFinalized},
}

// TransitionSources returns the states from which `to` is reachable.
func TransitionSources(to MarketState) []MarketState {
	var from []MarketState
	for src, dsts := range validTransitions {
		for _, dst := range dsts {
			if dst == to {
				from = append(from, src)
			}
		}
	}
	return from
}

// CanTransition reports whether a market may move from state `from` to `to`.
// Terminal states (FINALIZED, CANCELLED) admit no further transitions.
func CanTransition(from, to MarketState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Market is the off-chain replica of an on-chain prediction market account.
//
// Outcome fields are tri-state: nil means INVALID (no outcome), otherwise
// true = YES and false = NO.
type Market struct {
	ID           string // internal UUID
	ChainAddress string // base58 on-chain account address, unique
	Creator      string // base58 creator wallet
	Question     string
	State        MarketState

	// Proposal vote tally, written at settlement time. Must equal the sum
	// of persisted proposal vote rows when the settlement was made.
	ProposalLikes    int
	ProposalDislikes int
	ProposalTotal    int

	// Dispute vote tally for the current round.
	DisputeAgree    int
	DisputeDisagree int
	DisputeTotal    int
	DisputeRound    int

	ProposedOutcome *bool
	FinalOutcome    *bool

	Paused bool
	Volume float64

	CreatedAt            time.Time
	ApprovedAt           *time.Time
	ActivatedAt          *time.Time
	ResolutionProposedAt *time.Time
	DisputeInitiatedAt   *time.Time
	FinalizedAt          *time.Time
	UpdatedAt            time.Time
}

// DisputeWindowClosed reports whether the dispute window has elapsed since
// the dispute was initiated. It returns false when no dispute is recorded.
func (m *Market) DisputeWindowClosed(window time.Duration, now time.Time) bool {
	if m.DisputeInitiatedAt == nil {
		return false
	}
	return now.Sub(*m.DisputeInitiatedAt) >= window
}
