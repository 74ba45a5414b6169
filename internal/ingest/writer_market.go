package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// MarketWriter applies market lifecycle events to the local replica. The
// chain is the source of truth: an event arriving for a market that has
// already moved past the target state is logged and absorbed, never
// reported as a failure.
type MarketWriter struct {
	markets domain.MarketStore
	events  domain.EventStore
	logger  *slog.Logger
}

func NewMarketWriter(markets domain.MarketStore, events domain.EventStore, logger *slog.Logger) *MarketWriter {
	return &MarketWriter{
		markets: markets,
		events:  events,
		logger:  logger.With(slog.String("writer", "market")),
	}
}

func (w *MarketWriter) Handle(ctx context.Context, evt domain.ChainEvent, meta domain.EventMeta) domain.WriteResult {
	res := startResult(evt, meta)

	duplicate, err := recordEvent(ctx, w.events, evt, meta)
	if err != nil {
		return res.fail(err)
	}
	if duplicate {
		return res.dup()
	}

	switch e := evt.(type) {
	case domain.MarketCreated:
		err = w.create(ctx, e)
	case domain.MarketActivated:
		err = w.transition(ctx, e.Market, domain.MarketStateActive, domain.MarketMutation{
			ActivatedAt: timePtr(e.Timestamp),
		})
	case domain.MarketResolved:
		err = w.transition(ctx, e.Market, domain.MarketStateResolving, domain.MarketMutation{
			ProposedOutcome:      &e.ProposedOutcome,
			ResolutionProposedAt: timePtr(e.Timestamp),
		})
	case domain.DisputeInitiated:
		err = w.transition(ctx, e.Market, domain.MarketStateDisputed, domain.MarketMutation{
			DisputeRound:       &e.Round,
			DisputeInitiatedAt: timePtr(e.Timestamp),
		})
	case domain.MarketFinalized:
		err = w.transition(ctx, e.Market, domain.MarketStateFinalized, domain.MarketMutation{
			FinalOutcome:    &e.FinalOutcome,
			DisputeAgree:    &e.Agrees,
			DisputeDisagree: &e.Disagrees,
			DisputeTotal:    intPtr(e.Agrees + e.Disagrees),
			FinalizedAt:     timePtr(e.Timestamp),
		})
	case domain.MarketCancelled:
		err = w.transition(ctx, e.Market, domain.MarketStateCancelled, domain.MarketMutation{})
	default:
		err = fmt.Errorf("ingest: market writer cannot handle %s", evt.Type())
	}
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return res.dup()
		}
		return res.fail(err)
	}
	return res.ok()
}

func (w *MarketWriter) create(ctx context.Context, e domain.MarketCreated) error {
	m := domain.Market{
		ID:           uuid.NewString(),
		ChainAddress: e.Market,
		Creator:      e.Creator,
		Question:     e.Question,
		State:        domain.MarketStateProposed,
		CreatedAt:    time.Unix(e.Timestamp, 0).UTC(),
	}
	if err := w.markets.Create(ctx, m); err != nil {
		return fmt.Errorf("ingest: create market %s: %w", e.Market, err)
	}
	return nil
}

// transition resolves the market by chain address and advances its state.
// An invalid transition means the event arrived late or out of order; the
// on-chain state machine already enforced ordering, so we absorb it.
func (w *MarketWriter) transition(ctx context.Context, addr string, to domain.MarketState, mut domain.MarketMutation) error {
	m, err := w.markets.GetByChainAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("ingest: lookup market %s: %w", addr, err)
	}
	err = w.markets.Transition(ctx, m.ID, to, mut)
	if errors.Is(err, domain.ErrInvalidTransition) {
		w.logger.Warn("absorbing out-of-order transition",
			slog.String("market", addr),
			slog.String("current", string(m.State)),
			slog.String("target", string(to)),
		)
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ingest: transition market %s to %s: %w", addr, to, err)
	}
	return nil
}

func timePtr(unix int64) *time.Time {
	t := time.Unix(unix, 0).UTC()
	return &t
}

func intPtr(v int) *int { return &v }
