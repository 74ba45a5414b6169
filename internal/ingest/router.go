package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zmartlabs/zmart-sync/internal/domain"
)

// Router dispatches decoded events to their typed writer. The switch is
// exhaustive over the event sum; an unrouted kind is a bug surfaced as a
// failed WriteResult, not a silent drop.
type Router struct {
	market Writer
	trade  Writer
	vote   Writer
	admin  Writer
	logger *slog.Logger
}

func NewRouter(market, trade, vote, admin Writer, logger *slog.Logger) *Router {
	return &Router{
		market: market,
		trade:  trade,
		vote:   vote,
		admin:  admin,
		logger: logger.With(slog.String("component", "router")),
	}
}

// Dispatch routes one event to its writer and returns the outcome.
func (r *Router) Dispatch(ctx context.Context, evt domain.ChainEvent, meta domain.EventMeta) domain.WriteResult {
	var res domain.WriteResult
	switch evt.(type) {
	case domain.MarketCreated, domain.MarketActivated, domain.MarketResolved,
		domain.DisputeInitiated, domain.MarketFinalized, domain.MarketCancelled:
		res = r.market.Handle(ctx, evt, meta)

	case domain.SharesBought, domain.SharesSold,
		domain.WinningsClaimed, domain.LiquidityWithdrawn:
		res = r.trade.Handle(ctx, evt, meta)

	case domain.ProposalVoteSubmitted, domain.DisputeVoteSubmitted,
		domain.ProposalAggregated, domain.DisputeAggregated:
		res = r.vote.Handle(ctx, evt, meta)

	case domain.EmergencyPauseToggled, domain.ConfigUpdated:
		res = r.admin.Handle(ctx, evt, meta)

	default:
		res = domain.WriteResult{
			EventType:   evt.Type(),
			TxSignature: meta.TxSignature,
			Err:         fmt.Sprintf("ingest: no writer for event %s", evt.Type()),
		}
	}

	if !res.Success {
		r.logger.Error("event processing failed",
			slog.String("event", string(res.EventType)),
			slog.String("tx", res.TxSignature),
			slog.String("error", res.Err),
		)
	} else if res.Duplicate {
		r.logger.Debug("duplicate event absorbed",
			slog.String("event", string(res.EventType)),
			slog.String("tx", res.TxSignature),
		)
	}
	return res
}

// ProcessTransaction parses one transaction descriptor and dispatches every
// event it emitted, in order. Writer failures do not stop later events in
// the same transaction.
func (r *Router) ProcessTransaction(ctx context.Context, p *Parser, tx domain.TransactionDescriptor) []domain.WriteResult {
	events := p.Parse(tx)
	if len(events) == 0 {
		return nil
	}
	meta := domain.EventMeta{
		TxSignature: tx.Signature,
		Slot:        tx.Slot,
		BlockTime:   time.Unix(tx.BlockTime, 0).UTC(),
	}
	results := make([]domain.WriteResult, 0, len(events))
	for _, evt := range events {
		results = append(results, r.Dispatch(ctx, evt, meta))
	}
	return results
}
