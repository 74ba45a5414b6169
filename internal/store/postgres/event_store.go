package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The
// (tx_signature, event_type) primary key is the deduplication mechanism
// for the whole ingestion path.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection
// pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Record inserts an event-audit row. A conflicting insert means the event
// was already processed and returns domain.ErrDuplicate.
func (s *EventStore) Record(ctx context.Context, rec domain.EventRecord) error {
	const query = `
		INSERT INTO chain_events (tx_signature, event_type, payload, slot, block_time)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		rec.TxSignature, string(rec.EventType), rec.Payload, int64(rec.Slot), rec.BlockTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("postgres: record event %s/%s: %w", rec.TxSignature, rec.EventType, err)
	}
	return nil
}

// ListBefore returns event records processed before the cutoff, oldest
// first.
func (s *EventStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.EventRecord, error) {
	const query = `
		SELECT tx_signature, event_type, payload, slot, block_time, processed_at
		FROM chain_events
		WHERE processed_at < $1
		ORDER BY processed_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %v: %w", cutoff, err)
	}
	defer rows.Close()

	var recs []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		var eventType string
		var slot int64
		var blockTime *time.Time
		if err := rows.Scan(&rec.TxSignature, &eventType, &rec.Payload, &slot, &blockTime, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event record: %w", err)
		}
		rec.EventType = domain.EventType(eventType)
		rec.Slot = uint64(slot)
		if blockTime != nil {
			rec.BlockTime = *blockTime
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return recs, nil
}

// DeleteBefore prunes event records processed before the cutoff.
func (s *EventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chain_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %v: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of event records.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chain_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
