package domain

import "time"

// TradeSide distinguishes buys from sells.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is one replicated on-chain trade fill, keyed by the transaction it
// arrived in. Rows are append-only; the ingestion path tolerates
// re-delivery through the event-audit natural key.
type Trade struct {
	ID          string // internal UUID
	MarketID    string
	Trader      string
	Side        TradeSide
	Outcome     bool // true = YES shares
	Shares      float64
	Amount      float64 // cost for buys, proceeds for sells
	TxSignature string
	Slot        uint64
	BlockTime   time.Time
	CreatedAt   time.Time
}
