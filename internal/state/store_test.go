package state

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeboard/botclient/internal/domain"
)

func openTrade(id string) domain.Trade {
	return domain.Trade{
		ID:       id,
		Symbol:   "BTCUSDT",
		Status:   domain.TradeStatusOpen,
		Quantity: decimal.RequireFromString("0.1"),
	}
}

func closedTrade(id string) domain.Trade {
	now := time.Now()
	t := openTrade(id)
	t.Status = domain.TradeStatusClosed
	t.ClosedAt = &now
	return t
}

func TestApplyPoll_ReplacesWholesale(t *testing.T) {
	s := NewStore()

	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t1"), openTrade("t2")})
	assert.Len(t, s.OpenTrades(), 2)

	// next poll fully replaces, no merging
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t3")})
	trades := s.OpenTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, "t3", trades[0].ID)
}

func TestApplyPoll_SetsLastUpdatedAndClearsLoading(t *testing.T) {
	s := NewStore()
	assert.True(t, s.IsLoading())
	assert.True(t, s.LastUpdated().IsZero())

	s.ApplyPoll(KindPortfolio, domain.Portfolio{Balance: decimal.NewFromInt(1000)})
	assert.False(t, s.IsLoading())
	assert.False(t, s.LastUpdated().IsZero())
}

func TestApplyPush_SameRuleAsPoll(t *testing.T) {
	s := NewStore()
	s.ApplyPoll(KindSignals, []domain.Signal{{Symbol: "BTCUSDT", Call: domain.SignalLong}})

	s.ApplyPush(Update{Kind: KindSignals, Value: []domain.Signal{
		{Symbol: "ETHUSDT", Call: domain.SignalShort},
	}})

	signals := s.Signals()
	require.Len(t, signals, 1)
	assert.Equal(t, "ETHUSDT", signals[0].Symbol)
}

func TestApplyPush_LastWriterWins(t *testing.T) {
	s := NewStore()
	// a poll result landing after a push for the same slice overwrites it,
	// by completion order, not by source
	s.ApplyPush(Update{Kind: KindOpenTrades, Value: []domain.Trade{openTrade("push-1")}})
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("poll-1")})

	trades := s.OpenTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, "poll-1", trades[0].ID)
}

func TestTradeNeverInBothCollections(t *testing.T) {
	s := NewStore()
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t1"), openTrade("t2")})
	// server reports t1 as closed; identity is stable across the transition
	s.ApplyPoll(KindClosedTrades, []domain.Trade{closedTrade("t1")})

	open := s.OpenTrades()
	closed := s.ClosedTrades()
	require.Len(t, open, 1)
	assert.Equal(t, "t2", open[0].ID)
	require.Len(t, closed, 1)
	assert.Equal(t, "t1", closed[0].ID)

	// and the other direction: a re-opened id leaves closed
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t1")})
	assert.Empty(t, s.ClosedTrades())
}

func TestRecordTrade_MovesBetweenCollections(t *testing.T) {
	s := NewStore()
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t1")})

	s.RecordTrade(closedTrade("t1"))
	assert.Empty(t, s.OpenTrades())
	require.Len(t, s.ClosedTrades(), 1)

	s.RecordTrade(openTrade("t9"))
	require.Len(t, s.OpenTrades(), 1)
	assert.Equal(t, "t9", s.OpenTrades()[0].ID)
}

func TestRecordOrder_Upserts(t *testing.T) {
	s := NewStore()
	s.RecordOrder(domain.Order{ID: "o1", Status: domain.OrderStatusSubmitted})
	s.RecordOrder(domain.Order{ID: "o2", Status: domain.OrderStatusSubmitted})
	s.RecordOrder(domain.Order{ID: "o1", Status: domain.OrderStatusFilled})

	orders := s.ActiveOrders()
	require.Len(t, orders, 2)
	for _, o := range orders {
		if o.ID == "o1" {
			assert.Equal(t, domain.OrderStatusFilled, o.Status)
		}
	}
}

func TestBotStatus_DrivesActiveFlag(t *testing.T) {
	s := NewStore()
	assert.False(t, s.IsActive())

	s.ApplyPoll(KindBotStatus, domain.BotStatus{Running: true})
	assert.True(t, s.IsActive())

	s.ApplyPush(Update{Kind: KindBotStatus, Value: domain.BotStatus{Running: false}})
	assert.False(t, s.IsActive())
}

func TestNotices(t *testing.T) {
	s := NewStore()
	assert.Nil(t, s.CurrentNotice())

	s.SetNotice(SeverityWarning, KindClosedTrades, "Database connection error")
	n := s.CurrentNotice()
	require.NotNil(t, n)
	assert.Equal(t, SeverityWarning, n.Severity)
	assert.Equal(t, "Database connection error", n.Message)
	assert.Equal(t, KindClosedTrades, n.Source)

	s.ClearNotice()
	assert.Nil(t, s.CurrentNotice())
}

func TestMismatchedPayloadDropped(t *testing.T) {
	s := NewStore()
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t1")})
	before := s.LastUpdated()

	// wrong type for the kind: snapshot unchanged
	s.ApplyPoll(KindOpenTrades, "not a trade slice")
	assert.Len(t, s.OpenTrades(), 1)
	assert.Equal(t, before, s.LastUpdated())
}

func TestReadViewsReturnCopies(t *testing.T) {
	s := NewStore()
	s.ApplyPoll(KindOpenTrades, []domain.Trade{openTrade("t1")})

	view := s.OpenTrades()
	view[0].ID = "mutated"

	assert.Equal(t, "t1", s.OpenTrades()[0].ID)
}
