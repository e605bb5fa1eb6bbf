// Package client is the front door for a UI: it composes the REST
// backend, the push channel, the poller, the confirmation machine and the
// state store into one object with action methods. Views read snapshots
// from the store; actions here return plain error values for the UI to
// surface.
package client

import (
	"context"
	"time"

	"github.com/tradeboard/botclient/internal/api"
	"github.com/tradeboard/botclient/internal/confirm"
	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/internal/journal"
	"github.com/tradeboard/botclient/internal/poller"
	"github.com/tradeboard/botclient/internal/state"
	"github.com/tradeboard/botclient/internal/stream"
	"github.com/tradeboard/botclient/pkg/logger"
)

// Backend is everything the facade needs from the REST client.
// *api.Client satisfies it; tests substitute a fake.
type Backend interface {
	poller.Backend
	confirm.OrderAPI
	GetPortfolio(ctx context.Context) (domain.Portfolio, error)
	CloseTrade(ctx context.Context, tradeID string) (domain.Trade, error)
}

// Options configures a Client.
type Options struct {
	Backend      Backend
	StreamURL    string
	StreamConfig stream.Config
	PollInterval time.Duration
	Confirm      confirm.Config
	// Journal is optional. When set, executed orders and closed trades are
	// recorded locally on a best-effort basis.
	Journal *journal.Journal
}

// Client is the composed trading client.
type Client struct {
	backend Backend
	store   *state.Store
	machine *confirm.Machine
	poller  *poller.Poller
	journal *journal.Journal

	streamURL    string
	streamConfig stream.Config
	channel      *stream.Channel
}

// New wires the components together. Call Start to begin polling and
// ConnectStream to attach the push channel.
func New(opts Options) *Client {
	store := state.NewStore()
	return &Client{
		backend:      opts.Backend,
		store:        store,
		machine:      confirm.NewMachine(opts.Backend, store, opts.Confirm),
		poller:       poller.New(opts.Backend, store, opts.PollInterval),
		journal:      opts.Journal,
		streamURL:    opts.StreamURL,
		streamConfig: opts.StreamConfig,
	}
}

// Store exposes the state store for views to snapshot from.
func (c *Client) Store() *state.Store {
	return c.store
}

// Confirmer exposes the confirmation machine so a UI can hook its
// countdown and expiry callbacks before Start.
func (c *Client) Confirmer() *confirm.Machine {
	return c.machine
}

// Start launches the poll loop.
func (c *Client) Start(ctx context.Context) {
	c.poller.Start(ctx)
}

// ConnectStream dials the push channel. Pushed updates land in the store
// under the same replacement rule as polled ones. The channel is single
// use; call again after a drop to establish a fresh one.
func (c *Client) ConnectStream(ctx context.Context) error {
	if c.streamURL == "" {
		return nil
	}
	ch := stream.NewChannel(c.streamURL, c.store.ApplyPush, c.streamConfig)
	if err := ch.Connect(ctx); err != nil {
		return err
	}
	c.channel = ch
	return nil
}

// StreamState reports the push channel's lifecycle state, or StateClosed
// when no channel was ever connected.
func (c *Client) StreamState() stream.State {
	if c.channel == nil {
		return stream.StateClosed
	}
	return c.channel.State()
}

// Stop tears everything down: poll loop, countdown, push channel, journal.
func (c *Client) Stop() {
	c.poller.Stop()
	c.machine.Stop()
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.journal != nil {
		_ = c.journal.Close()
	}
}

// PlaceOrder submits a draft and returns the confirmation the user must
// echo back within its window.
func (c *Client) PlaceOrder(ctx context.Context, draft domain.OrderDraft) (domain.Confirmation, error) {
	return c.machine.SubmitDraft(ctx, draft)
}

// ConfirmOrder executes the pending order. On success the store is
// already updated by the machine; the journal entry is best effort.
func (c *Client) ConfirmOrder(ctx context.Context, token string) (api.OrderResult, error) {
	pending := c.machine.Pending()
	result, err := c.machine.Confirm(ctx, token)
	if err != nil {
		return api.OrderResult{}, err
	}
	if c.journal != nil && result.Order != nil {
		summary := ""
		if pending != nil {
			summary = pending.Summary
		}
		if jerr := c.journal.RecordOrder(*result.Order, summary); jerr != nil {
			logger.Warnf("client: journal write failed: %v", jerr)
		}
	}
	c.poller.RefreshNow()
	return result, nil
}

// CancelOrder abandons the pending confirmation, if any.
func (c *Client) CancelOrder(ctx context.Context) {
	c.machine.Cancel(ctx)
}

// CloseTrade closes an open position and reconciles the store with the
// returned trade.
func (c *Client) CloseTrade(ctx context.Context, tradeID string) error {
	trade, err := c.backend.CloseTrade(ctx, tradeID)
	if err != nil {
		return err
	}
	c.store.RecordTrade(trade)
	if c.journal != nil && trade.Status == domain.TradeStatusClosed {
		if jerr := c.journal.RecordClosedTrade(trade); jerr != nil {
			logger.Warnf("client: journal write failed: %v", jerr)
		}
	}
	c.poller.RefreshNow()
	return nil
}

// RefreshAll runs one full poll cycle synchronously.
func (c *Client) RefreshAll(ctx context.Context) {
	c.poller.RunCycle(ctx)
}

// RefreshTrades re-fetches just the two trade lists. The first error wins
// but both fetches are attempted.
func (c *Client) RefreshTrades(ctx context.Context) error {
	var first error
	if open, err := c.backend.GetOpenTrades(ctx); err != nil {
		first = err
	} else {
		c.store.ApplyPoll(state.KindOpenTrades, open)
	}
	if closed, err := c.backend.GetClosedTrades(ctx); err != nil {
		if first == nil {
			first = err
		}
	} else {
		c.store.ApplyPoll(state.KindClosedTrades, closed)
	}
	return first
}

// LoadPortfolio is the first-paint fetch: single attempt, abortable, and
// a failure leaves the store untouched for the poller to fill in later.
func (c *Client) LoadPortfolio(ctx context.Context) error {
	portfolio, err := c.backend.GetPortfolio(ctx)
	if err != nil {
		return err
	}
	c.store.ApplyPoll(state.KindPortfolio, portfolio)
	return nil
}
