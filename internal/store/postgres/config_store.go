package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// ChainConfigStore implements domain.ChainConfigStore using PostgreSQL.
// The table holds a single row.
type ChainConfigStore struct {
	pool *pgxpool.Pool
}

// NewChainConfigStore creates a new ChainConfigStore backed by the given
// connection pool.
func NewChainConfigStore(pool *pgxpool.Pool) *ChainConfigStore {
	return &ChainConfigStore{pool: pool}
}

// Get returns the mirrored on-chain config, or domain.ErrNotFound when no
// ConfigUpdated event has been ingested yet.
func (s *ChainConfigStore) Get(ctx context.Context) (domain.ChainConfig, error) {
	const query = `
		SELECT proposal_threshold_bps, dispute_threshold_bps,
		       dispute_window_secs, paused, updated_at
		FROM chain_config WHERE singleton`

	var cfg domain.ChainConfig
	var windowSecs int64
	err := s.pool.QueryRow(ctx, query).Scan(
		&cfg.ProposalThresholdBps, &cfg.DisputeThresholdBps,
		&windowSecs, &cfg.Paused, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ChainConfig{}, domain.ErrNotFound
		}
		return domain.ChainConfig{}, fmt.Errorf("postgres: get chain config: %w", err)
	}
	cfg.DisputeWindow = time.Duration(windowSecs) * time.Second
	return cfg, nil
}

// upsertChainConfigSQL deliberately leaves the paused column out: the
// pause flag is owned by the pause broadcast (AdminStore), and a config
// update must not reset it.
const upsertChainConfigSQL = `
	INSERT INTO chain_config (
		singleton, proposal_threshold_bps, dispute_threshold_bps,
		dispute_window_secs, updated_at
	) VALUES (TRUE, $1, $2, $3, NOW())
	ON CONFLICT (singleton) DO UPDATE SET
		proposal_threshold_bps = EXCLUDED.proposal_threshold_bps,
		dispute_threshold_bps  = EXCLUDED.dispute_threshold_bps,
		dispute_window_secs    = EXCLUDED.dispute_window_secs,
		updated_at             = NOW()`

// Upsert writes the governance parameters of the single mirror row. The
// Paused field of cfg is ignored.
func (s *ChainConfigStore) Upsert(ctx context.Context, cfg domain.ChainConfig) error {
	_, err := s.pool.Exec(ctx, upsertChainConfigSQL,
		cfg.ProposalThresholdBps, cfg.DisputeThresholdBps,
		int64(cfg.DisputeWindow/time.Second),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert chain config: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ChainConfigStore = (*ChainConfigStore)(nil)
