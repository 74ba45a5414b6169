package domain

import "time"

// VotePhase discriminates proposal approval votes from dispute votes.
type VotePhase string

const (
	VotePhaseProposal VotePhase = "proposal"
	VotePhaseDispute  VotePhase = "dispute"
)

// Vote is a single off-chain governance vote. Vote rows are insert-only:
// they are never mutated or deleted, forming the audit trail behind the
// tallies stored on the market at settlement time.
//
// Uniqueness: (market, voter) for proposal votes, (market, voter, round)
// for dispute votes. A second vote in the same phase/round is rejected by
// the store as ErrDuplicate, which callers treat as a no-op.
type Vote struct {
	MarketID  string
	Voter     string // base58 wallet address
	Choice    bool   // proposal: like/dislike; dispute: agree/disagree
	Phase     VotePhase
	Round     int // dispute votes only, zero for proposal votes
	Weight    int // default 1
	CreatedAt time.Time
}
