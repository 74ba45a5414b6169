package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// AdminStore implements domain.AdminStore using PostgreSQL.
type AdminStore struct {
	pool *pgxpool.Pool
}

// NewAdminStore creates a new AdminStore backed by the given connection
// pool.
func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

// pauseMirrorSQL keeps chain_config.paused in step with the broadcast. The
// row may not exist yet when the pause toggle arrives before the first
// ConfigUpdated; the insert path fills the governance columns from the
// table defaults.
const pauseMirrorSQL = `
	INSERT INTO chain_config (singleton, paused) VALUES (TRUE, $1)
	ON CONFLICT (singleton) DO UPDATE SET
		paused     = EXCLUDED.paused,
		updated_at = NOW()`

// PauseBroadcast records the pause-toggle event, flips the pause flag on
// every ACTIVE market and updates the chain-config mirror, all in one
// transaction. On re-delivery the audit insert conflicts first and nothing
// else runs.
func (s *AdminStore) PauseBroadcast(ctx context.Context, rec domain.EventRecord, paused bool) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: pause broadcast: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO chain_events (tx_signature, event_type, payload, slot, block_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.TxSignature, string(rec.EventType), rec.Payload, int64(rec.Slot), rec.BlockTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicate
		}
		return 0, fmt.Errorf("postgres: pause broadcast: record event: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE markets SET paused = $1, updated_at = NOW() WHERE state = $2`,
		paused, string(domain.MarketStateActive),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: pause broadcast: update markets: %w", err)
	}

	if _, err := tx.Exec(ctx, pauseMirrorSQL, paused); err != nil {
		return 0, fmt.Errorf("postgres: pause broadcast: update mirror: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: pause broadcast: commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.AdminStore = (*AdminStore)(nil)
