package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection
// pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, chain_address, creator, question, state,
	proposal_likes, proposal_dislikes, proposal_total,
	dispute_agree, dispute_disagree, dispute_total, dispute_round,
	proposed_outcome, final_outcome, paused, volume,
	created_at, approved_at, activated_at, resolution_proposed_at,
	dispute_initiated_at, finalized_at, updated_at`

// Create inserts a new market row. The chain address carries a unique
// constraint; a second create for the same address returns
// domain.ErrDuplicate.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, chain_address, creator, question, state,
			proposed_outcome, final_outcome, paused, volume,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.ChainAddress, m.Creator, m.Question, string(m.State),
		m.ProposedOutcome, m.FinalOutcome, m.Paused, m.Volume,
		m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ChainAddress, err)
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var state string
	err := row.Scan(
		&m.ID, &m.ChainAddress, &m.Creator, &m.Question, &state,
		&m.ProposalLikes, &m.ProposalDislikes, &m.ProposalTotal,
		&m.DisputeAgree, &m.DisputeDisagree, &m.DisputeTotal, &m.DisputeRound,
		&m.ProposedOutcome, &m.FinalOutcome, &m.Paused, &m.Volume,
		&m.CreatedAt, &m.ApprovedAt, &m.ActivatedAt, &m.ResolutionProposedAt,
		&m.DisputeInitiatedAt, &m.FinalizedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.State = domain.MarketState(state)
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByChainAddress retrieves a market by its on-chain account address.
func (s *MarketStore) GetByChainAddress(ctx context.Context, addr string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE chain_address = $1`, addr)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market by address %s: %w", addr, err)
	}
	return m, nil
}

// ListByState returns markets in the given state, oldest first. Aggregators
// poll their candidates through this method, so ordering is part of the
// contract.
func (s *MarketStore) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by state %s: %w", state, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets by state rows: %w", err)
	}
	return markets, nil
}

// Transition advances a market to the given state, applying the mutation
// in the same statement. The WHERE clause restricts the update to states
// from which the target is reachable, so an out-of-order or repeated event
// cannot regress the lifecycle. When no row matches, the current state
// decides the error: already in the target state is domain.ErrDuplicate
// (re-delivery no-op), a missing row is domain.ErrNotFound, anything else
// is domain.ErrInvalidTransition.
func (s *MarketStore) Transition(ctx context.Context, id string, to domain.MarketState, mut domain.MarketMutation) error {
	sources := domain.TransitionSources(to)
	if len(sources) == 0 {
		return fmt.Errorf("postgres: transition market %s: %w: no path to %s", id, domain.ErrInvalidTransition, to)
	}

	sets := []string{"state = $2", "updated_at = NOW()"}
	args := []any{id, string(to)}
	idx := 3

	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}

	if mut.ProposalLikes != nil {
		add("proposal_likes", *mut.ProposalLikes)
	}
	if mut.ProposalDislikes != nil {
		add("proposal_dislikes", *mut.ProposalDislikes)
	}
	if mut.ProposalTotal != nil {
		add("proposal_total", *mut.ProposalTotal)
	}
	if mut.DisputeAgree != nil {
		add("dispute_agree", *mut.DisputeAgree)
	}
	if mut.DisputeDisagree != nil {
		add("dispute_disagree", *mut.DisputeDisagree)
	}
	if mut.DisputeTotal != nil {
		add("dispute_total", *mut.DisputeTotal)
	}
	if mut.DisputeRound != nil {
		add("dispute_round", *mut.DisputeRound)
	}
	if mut.ProposedOutcome != nil {
		add("proposed_outcome", *mut.ProposedOutcome)
	}
	if mut.FinalOutcome != nil {
		add("final_outcome", *mut.FinalOutcome)
	}
	if mut.ApprovedAt != nil {
		add("approved_at", *mut.ApprovedAt)
	}
	if mut.ActivatedAt != nil {
		add("activated_at", *mut.ActivatedAt)
	}
	if mut.ResolutionProposedAt != nil {
		add("resolution_proposed_at", *mut.ResolutionProposedAt)
	}
	if mut.DisputeInitiatedAt != nil {
		add("dispute_initiated_at", *mut.DisputeInitiatedAt)
	}
	if mut.FinalizedAt != nil {
		add("finalized_at", *mut.FinalizedAt)
	}

	srcList := make([]string, len(sources))
	for i, src := range sources {
		srcList[i] = fmt.Sprintf("$%d", idx)
		args = append(args, string(src))
		idx++
	}

	query := fmt.Sprintf(
		"UPDATE markets SET %s WHERE id = $1 AND state IN (%s)",
		strings.Join(sets, ", "), strings.Join(srcList, ", "),
	)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: transition market %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row moved: distinguish re-delivery from a genuine violation.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT state FROM markets WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: transition market %s: check state: %w", id, err)
	}
	if domain.MarketState(current) == to {
		return domain.ErrDuplicate
	}
	return fmt.Errorf("postgres: transition market %s: %w: %s -> %s", id, domain.ErrInvalidTransition, current, to)
}

// SetPausedBulk flips the pause flag on every market in the given state
// with a single UPDATE.
func (s *MarketStore) SetPausedBulk(ctx context.Context, state domain.MarketState, paused bool) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET paused = $1, updated_at = NOW() WHERE state = $2`,
		paused, string(state),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: bulk pause %s markets: %w", state, err)
	}
	return tag.RowsAffected(), nil
}

// AddVolume increments a market's cumulative trade volume.
func (s *MarketStore) AddVolume(ctx context.Context, id string, delta float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets SET volume = volume + $1, updated_at = NOW() WHERE id = $2`,
		delta, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: add volume to market %s: %w", id, err)
	}
	return nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
