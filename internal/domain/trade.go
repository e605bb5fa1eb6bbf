package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeStatus tracks a trade through its life.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// Trade is one position, open or closed. Its ID is stable across the
// open-to-closed transition; the state store guarantees it is never held
// in both collections at once.
type Trade struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  Direction       `json:"direction"`
	Quantity   decimal.Decimal `json:"quantity"`
	Leverage   int             `json:"leverage"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price,omitempty"`
	PL         decimal.Decimal `json:"pnl"`
	PLPct      decimal.Decimal `json:"pnl_pct"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	Status     TradeStatus     `json:"status"`
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpen
}
