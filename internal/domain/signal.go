package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalCall is the directional call of a strategy signal.
type SignalCall string

const (
	SignalLong    SignalCall = "long"
	SignalShort   SignalCall = "short"
	SignalNeutral SignalCall = "neutral"
)

// Signal is read-only from the client's perspective; the recent-signals
// view is replaced wholesale on each refresh.
type Signal struct {
	Symbol     string          `json:"symbol"`
	Call       SignalCall      `json:"call"`
	Confidence decimal.Decimal `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
	Timestamp  time.Time       `json:"timestamp"`
}
