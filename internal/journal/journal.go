// Package journal keeps a local, append-only audit trail of real-money
// actions: executed orders and closed trades. It exists so the history of
// what this client actually did survives restarts independently of the
// backend. Journal writes are best effort; a journal failure never fails
// the action that triggered it.
package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/tradeboard/botclient/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS executed_orders (
	id          TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	order_type  TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	price       TEXT,
	status      TEXT NOT NULL,
	summary     TEXT,
	recorded_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS closed_trades (
	id          TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	direction   TEXT NOT NULL,
	quantity    TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price  TEXT,
	pnl         TEXT,
	closed_at   INTEGER,
	recorded_at INTEGER NOT NULL
);
`

// Journal is a sqlite-backed audit log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "journal: create dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "journal: init schema")
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordOrder appends one executed order. Re-recording the same order ID
// updates its status rather than duplicating the row.
func (j *Journal) RecordOrder(order domain.Order, summary string) error {
	price := ""
	if !order.Price.IsZero() {
		price = order.Price.String()
	}
	_, err := j.db.Exec(`
		INSERT INTO executed_orders (id, symbol, side, order_type, quantity, price, status, summary, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		order.ID, order.Symbol, string(order.Side), string(order.Type),
		order.Quantity.String(), price, string(order.Status), summary,
		time.Now().Unix())
	return errors.Wrap(err, "journal: record order")
}

// RecordClosedTrade appends one closed trade.
func (j *Journal) RecordClosedTrade(trade domain.Trade) error {
	var closedAt int64
	if trade.ClosedAt != nil {
		closedAt = trade.ClosedAt.Unix()
	}
	_, err := j.db.Exec(`
		INSERT INTO closed_trades (id, symbol, direction, quantity, entry_price, exit_price, pnl, closed_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET exit_price = excluded.exit_price, pnl = excluded.pnl, closed_at = excluded.closed_at`,
		trade.ID, trade.Symbol, string(trade.Direction),
		trade.Quantity.String(), trade.EntryPrice.String(), trade.ExitPrice.String(),
		trade.PL.String(), closedAt, time.Now().Unix())
	return errors.Wrap(err, "journal: record trade")
}

// OrderEntry is one row of the executed-order history.
type OrderEntry struct {
	ID         string
	Symbol     string
	Side       string
	Type       string
	Quantity   string
	Price      string
	Status     string
	Summary    string
	RecordedAt time.Time
}

// RecentOrders returns up to limit entries, newest first.
func (j *Journal) RecentOrders(limit int) ([]OrderEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(`
		SELECT id, symbol, side, order_type, quantity, price, status, summary, recorded_at
		FROM executed_orders ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal: query orders")
	}
	defer rows.Close()

	var out []OrderEntry
	for rows.Next() {
		var e OrderEntry
		var recordedAt int64
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Side, &e.Type, &e.Quantity,
			&e.Price, &e.Status, &e.Summary, &recordedAt); err != nil {
			return nil, errors.Wrap(err, "journal: scan order")
		}
		e.RecordedAt = time.Unix(recordedAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
