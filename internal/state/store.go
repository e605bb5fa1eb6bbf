// Package state holds the authoritative in-memory snapshot of everything
// the dashboard shows: portfolio, trades, orders, signals, bot status.
// Poll results and push updates both land here; each named slice is
// replaced wholesale, last writer wins.
package state

import (
	"sync"
	"time"

	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/pkg/logger"
)

// Kind names one replaceable slice of the snapshot.
type Kind string

const (
	KindPortfolio    Kind = "portfolio"
	KindOpenTrades   Kind = "open_trades"
	KindClosedTrades Kind = "closed_trades"
	KindOrders       Kind = "orders"
	KindSignals      Kind = "signals"
	KindBotStatus    Kind = "bot_status"
	KindSettings     Kind = "settings"
)

// Severity classifies a surfaced failure.
type Severity string

const (
	SeverityWarning Severity = "warning" // server answered, declared failure
	SeverityError   Severity = "error"   // transport-level, retries exhausted
)

// Notice is a user-visible failure produced by the poller's
// classification. It lives on the store until the next success.
type Notice struct {
	Severity Severity
	Message  string
	Source   Kind
	At       time.Time
}

// Store is safe for concurrent use. Mutations take the write lock for the
// duration of one wholesale replacement, so readers never observe a
// half-applied update.
type Store struct {
	mu sync.RWMutex

	portfolio    domain.Portfolio
	openTrades   []domain.Trade
	closedTrades []domain.Trade
	orders       []domain.Order
	signals      []domain.Signal
	botStatus    domain.BotStatus
	settings     domain.Settings

	active      bool
	loading     bool
	lastUpdated time.Time
	notice      *Notice

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		loading: true,
		now:     time.Now,
	}
}

// --- read views (all return copies) ---

func (s *Store) Portfolio() domain.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolio
}

func (s *Store) OpenTrades() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTrades(s.openTrades)
}

func (s *Store) ClosedTrades() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTrades(s.closedTrades)
}

func (s *Store) ActiveOrders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

func (s *Store) Signals() []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

func (s *Store) BotStatus() domain.BotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botStatus
}

func (s *Store) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Store) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// CurrentNotice returns the active failure notice, if any.
func (s *Store) CurrentNotice() *Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.notice == nil {
		return nil
	}
	n := *s.notice
	return &n
}

// --- mutation entry points ---

// ApplyPoll replaces the slice named by kind with the poll result.
func (s *Store) ApplyPoll(kind Kind, value interface{}) {
	s.apply(kind, value, "poll")
}

// Update is one decoded push message.
type Update struct {
	Kind  Kind
	Value interface{}
}

// ApplyPush merges a push update using the same wholesale-replace rule as
// poll results. Push bypasses HTTP retries entirely.
func (s *Store) ApplyPush(update Update) {
	s.apply(update.Kind, update.Value, "push")
}

func (s *Store) apply(kind Kind, value interface{}, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case KindPortfolio:
		v, ok := value.(domain.Portfolio)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.portfolio = v
	case KindOpenTrades:
		v, ok := value.([]domain.Trade)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.openTrades = copyTrades(v)
		s.dropClosedDuplicates()
	case KindClosedTrades:
		v, ok := value.([]domain.Trade)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.closedTrades = copyTrades(v)
		s.dropOpenDuplicates()
	case KindOrders:
		v, ok := value.([]domain.Order)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.orders = append([]domain.Order(nil), v...)
	case KindSignals:
		v, ok := value.([]domain.Signal)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.signals = append([]domain.Signal(nil), v...)
	case KindBotStatus:
		v, ok := value.(domain.BotStatus)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.botStatus = v
		s.active = v.Running
	case KindSettings:
		v, ok := value.(domain.Settings)
		if !ok {
			logger.Warnf("state: %s carried %T for %s, dropping", source, value, kind)
			return
		}
		s.settings = v
	default:
		logger.Warnf("state: unknown kind %q from %s, dropping", kind, source)
		return
	}

	s.loading = false
	s.lastUpdated = s.now()
}

// RecordOrder upserts one order by ID. Used when a confirmed order comes
// back before the next poll replaces the whole slice.
func (s *Store) RecordOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == order.ID {
			s.orders[i] = order
			s.lastUpdated = s.now()
			return
		}
	}
	s.orders = append(s.orders, order)
	s.lastUpdated = s.now()
}

// RecordTrade places a trade in the collection matching its status,
// removing it from the other one. A trade is never in both.
func (s *Store) RecordTrade(trade domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.openTrades = removeTrade(s.openTrades, trade.ID)
	s.closedTrades = removeTrade(s.closedTrades, trade.ID)
	if trade.Status == domain.TradeStatusClosed {
		s.closedTrades = append(s.closedTrades, trade)
	} else {
		s.openTrades = append(s.openTrades, trade)
	}
	s.lastUpdated = s.now()
}

// SetNotice records a classified failure; cleared by the next success.
func (s *Store) SetNotice(severity Severity, source Kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = &Notice{
		Severity: severity,
		Message:  message,
		Source:   source,
		At:       s.now(),
	}
}

// ClearNotice removes the active failure notice.
func (s *Store) ClearNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = nil
}

// --- invariant helpers ---

// dropClosedDuplicates enforces the open/closed exclusivity invariant
// after the open slice was replaced: whatever is open now cannot also be
// in closed.
func (s *Store) dropClosedDuplicates() {
	open := make(map[string]struct{}, len(s.openTrades))
	for _, t := range s.openTrades {
		open[t.ID] = struct{}{}
	}
	kept := s.closedTrades[:0]
	for _, t := range s.closedTrades {
		if _, dup := open[t.ID]; !dup {
			kept = append(kept, t)
		}
	}
	s.closedTrades = kept
}

func (s *Store) dropOpenDuplicates() {
	closed := make(map[string]struct{}, len(s.closedTrades))
	for _, t := range s.closedTrades {
		closed[t.ID] = struct{}{}
	}
	kept := s.openTrades[:0]
	for _, t := range s.openTrades {
		if _, dup := closed[t.ID]; !dup {
			kept = append(kept, t)
		}
	}
	s.openTrades = kept
}

func copyTrades(in []domain.Trade) []domain.Trade {
	out := make([]domain.Trade, len(in))
	copy(out, in)
	return out
}

func removeTrade(in []domain.Trade, id string) []domain.Trade {
	kept := in[:0]
	for _, t := range in {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	return kept
}
