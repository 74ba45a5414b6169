package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// Writer applies one decoded event to local state. Implementations are
// idempotent: re-delivery of an already-processed event is a successful
// no-op flagged as Duplicate.
type Writer interface {
	Handle(ctx context.Context, evt domain.ChainEvent, meta domain.EventMeta) domain.WriteResult
}

// eventRecord builds the audit row for an event, serializing the decoded
// payload back to JSON.
func eventRecord(evt domain.ChainEvent, meta domain.EventMeta) (domain.EventRecord, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return domain.EventRecord{}, fmt.Errorf("ingest: marshal %s payload: %w", evt.Type(), err)
	}
	return domain.EventRecord{
		TxSignature: meta.TxSignature,
		EventType:   evt.Type(),
		Payload:     payload,
		Slot:        meta.Slot,
		BlockTime:   meta.BlockTime,
		ProcessedAt: time.Now().UTC(),
	}, nil
}

// recordEvent inserts the audit row for an event. duplicate=true means the
// (tx, type) pair was already processed and the caller must skip all side
// effects.
func recordEvent(ctx context.Context, store domain.EventStore, evt domain.ChainEvent, meta domain.EventMeta) (duplicate bool, err error) {
	rec, err := eventRecord(evt, meta)
	if err != nil {
		return false, err
	}
	if err := store.Record(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

type resultTimer struct {
	evt   domain.ChainEvent
	meta  domain.EventMeta
	began time.Time
}

func startResult(evt domain.ChainEvent, meta domain.EventMeta) resultTimer {
	return resultTimer{evt: evt, meta: meta, began: time.Now()}
}

func (r resultTimer) ok() domain.WriteResult {
	return domain.WriteResult{
		Success:     true,
		EventType:   r.evt.Type(),
		TxSignature: r.meta.TxSignature,
		Duration:    time.Since(r.began),
	}
}

func (r resultTimer) dup() domain.WriteResult {
	res := r.ok()
	res.Duplicate = true
	return res
}

func (r resultTimer) fail(err error) domain.WriteResult {
	return domain.WriteResult{
		EventType:   r.evt.Type(),
		TxSignature: r.meta.TxSignature,
		Duration:    time.Since(r.began),
		Err:         err.Error(),
	}
}
