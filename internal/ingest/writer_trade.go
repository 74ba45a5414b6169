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

// TradeWriter replicates trade fills and keeps per-market volume current.
// Claim and liquidity-withdrawal events carry no position change; they are
// audited and logged only.
type TradeWriter struct {
	trades  domain.TradeStore
	markets domain.MarketStore
	events  domain.EventStore
	logger  *slog.Logger
}

func NewTradeWriter(trades domain.TradeStore, markets domain.MarketStore, events domain.EventStore, logger *slog.Logger) *TradeWriter {
	return &TradeWriter{
		trades:  trades,
		markets: markets,
		events:  events,
		logger:  logger.With(slog.String("writer", "trade")),
	}
}

func (w *TradeWriter) Handle(ctx context.Context, evt domain.ChainEvent, meta domain.EventMeta) domain.WriteResult {
	res := startResult(evt, meta)

	duplicate, err := recordEvent(ctx, w.events, evt, meta)
	if err != nil {
		return res.fail(err)
	}
	if duplicate {
		return res.dup()
	}

	switch e := evt.(type) {
	case domain.SharesBought:
		err = w.insertFill(ctx, meta, e.Market, e.Trader, domain.TradeSideBuy, e.Outcome, e.Shares, e.Cost, e.Timestamp)
	case domain.SharesSold:
		err = w.insertFill(ctx, meta, e.Market, e.Trader, domain.TradeSideSell, e.Outcome, e.Shares, e.Proceeds, e.Timestamp)
	case domain.WinningsClaimed:
		w.logger.Info("winnings claimed",
			slog.String("market", e.Market),
			slog.String("claimer", e.Claimer),
			slog.Float64("amount", e.Amount),
		)
	case domain.LiquidityWithdrawn:
		w.logger.Info("liquidity withdrawn",
			slog.String("market", e.Market),
			slog.String("creator", e.Creator),
			slog.Float64("amount", e.Amount),
		)
	default:
		err = fmt.Errorf("ingest: trade writer cannot handle %s", evt.Type())
	}
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return res.dup()
		}
		return res.fail(err)
	}
	return res.ok()
}

func (w *TradeWriter) insertFill(ctx context.Context, meta domain.EventMeta, addr, trader string, side domain.TradeSide, outcome bool, shares, amount float64, ts int64) error {
	m, err := w.markets.GetByChainAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("ingest: lookup market %s: %w", addr, err)
	}
	t := domain.Trade{
		ID:          uuid.NewString(),
		MarketID:    m.ID,
		Trader:      trader,
		Side:        side,
		Outcome:     outcome,
		Shares:      shares,
		Amount:      amount,
		TxSignature: meta.TxSignature,
		Slot:        meta.Slot,
		BlockTime:   time.Unix(ts, 0).UTC(),
	}
	if err := w.trades.Insert(ctx, t); err != nil {
		return fmt.Errorf("ingest: insert trade %s: %w", meta.TxSignature, err)
	}
	if err := w.markets.AddVolume(ctx, m.ID, amount); err != nil {
		return fmt.Errorf("ingest: bump volume for market %s: %w", addr, err)
	}
	return nil
}
