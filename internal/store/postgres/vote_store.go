package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// VoteStore implements domain.VoteStore using PostgreSQL. Vote rows are
// insert-only; the primary keys enforce one vote per voter per phase (and
// round, for disputes).
type VoteStore struct {
	pool *pgxpool.Pool
}

// NewVoteStore creates a new VoteStore backed by the given connection pool.
func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Insert stores a vote. A repeated vote hits the primary key and surfaces
// as domain.ErrDuplicate, which callers treat as a no-op.
func (s *VoteStore) Insert(ctx context.Context, v domain.Vote) error {
	weight := v.Weight
	if weight == 0 {
		weight = 1
	}

	var err error
	switch v.Phase {
	case domain.VotePhaseProposal:
		_, err = s.pool.Exec(ctx,
			`INSERT INTO proposal_votes (market_id, voter, choice, weight)
			 VALUES ($1, $2, $3, $4)`,
			v.MarketID, v.Voter, v.Choice, weight,
		)
	case domain.VotePhaseDispute:
		_, err = s.pool.Exec(ctx,
			`INSERT INTO dispute_votes (market_id, voter, round, choice, weight)
			 VALUES ($1, $2, $3, $4, $5)`,
			v.MarketID, v.Voter, v.Round, v.Choice, weight,
		)
	default:
		return fmt.Errorf("postgres: insert vote: unknown phase %q", v.Phase)
	}

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("postgres: insert %s vote for market %s: %w", v.Phase, v.MarketID, err)
	}
	return nil
}

// TallyProposal sums proposal vote weights for a market, split by choice.
func (s *VoteStore) TallyProposal(ctx context.Context, marketID string) (domain.VoteTally, error) {
	const query = `
		SELECT
			COALESCE(SUM(weight) FILTER (WHERE choice), 0),
			COALESCE(SUM(weight) FILTER (WHERE NOT choice), 0)
		FROM proposal_votes WHERE market_id = $1`

	var t domain.VoteTally
	if err := s.pool.QueryRow(ctx, query, marketID).Scan(&t.Likes, &t.Dislikes); err != nil {
		return domain.VoteTally{}, fmt.Errorf("postgres: tally proposal votes for %s: %w", marketID, err)
	}
	t.Total = t.Likes + t.Dislikes
	return t, nil
}

// TallyDispute sums dispute vote weights for a market and round, split by
// choice.
func (s *VoteStore) TallyDispute(ctx context.Context, marketID string, round int) (domain.VoteTally, error) {
	const query = `
		SELECT
			COALESCE(SUM(weight) FILTER (WHERE choice), 0),
			COALESCE(SUM(weight) FILTER (WHERE NOT choice), 0)
		FROM dispute_votes WHERE market_id = $1 AND round = $2`

	var t domain.VoteTally
	if err := s.pool.QueryRow(ctx, query, marketID, round).Scan(&t.Likes, &t.Dislikes); err != nil {
		return domain.VoteTally{}, fmt.Errorf("postgres: tally dispute votes for %s round %d: %w", marketID, round, err)
	}
	t.Total = t.Likes + t.Dislikes
	return t, nil
}

// Compile-time interface check.
var _ domain.VoteStore = (*VoteStore)(nil)
