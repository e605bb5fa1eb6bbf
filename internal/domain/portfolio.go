package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is a full account snapshot. It is always replaced wholesale;
// no field-level patching, so a reader never sees a half-updated mix of
// two server states.
type Portfolio struct {
	Balance        decimal.Decimal `json:"balance"`
	Equity         decimal.Decimal `json:"equity"`
	TotalPL        decimal.Decimal `json:"total_pnl"`
	TotalPLPct     decimal.Decimal `json:"total_pnl_pct"`
	WinRate        decimal.Decimal `json:"win_rate"`
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	MaxDrawdownPct decimal.Decimal `json:"max_drawdown_pct"`
	CurrentStreak  int             `json:"current_streak"`
	BestStreak     int             `json:"best_streak"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BotStatus reports whether the bot engine is running and what it is doing.
type BotStatus struct {
	Running        bool      `json:"running"`
	Strategy       string    `json:"strategy"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	LastError      string    `json:"last_error,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Settings is the bot configuration as reported by the backend. The client
// treats it as opaque read state refreshed alongside status.
type Settings struct {
	Symbol         string          `json:"symbol"`
	Leverage       int             `json:"leverage"`
	RiskPerTrade   decimal.Decimal `json:"risk_per_trade"`
	MaxOpenTrades  int             `json:"max_open_trades"`
	TradingEnabled bool            `json:"trading_enabled"`
}
