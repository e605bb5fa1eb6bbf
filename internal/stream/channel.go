// Package stream maintains the push connection to the trading backend.
// Inbound frames are parsed defensively: a malformed message is logged and
// dropped, never surfaced, and never allowed to crash the dispatcher.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/internal/state"
	"github.com/tradeboard/botclient/pkg/logger"
)

// State of the channel. Closed and Errored are terminal; the owner builds
// a fresh Channel if it wants to reconnect.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// Handler receives each valid decoded update.
type Handler func(update state.Update)

// Config tunes connection behavior.
type Config struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 15 * time.Second,
		PingInterval:     15 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
	}
}

// Channel is a single-use push connection. Connect once, Close once.
type Channel struct {
	url     string
	config  Config
	handler Handler

	conn   *websocket.Conn
	connMu sync.Mutex

	st int32 // State, accessed atomically

	cancel context.CancelFunc
	wg     sync.WaitGroup

	parseErrCount   uint64
	lastParseErrLog time.Time
	parseErrMu      sync.Mutex
}

// NewChannel builds a channel that will dispatch decoded updates to
// handler. handler must not be nil.
func NewChannel(url string, handler Handler, config Config) *Channel {
	if handler == nil {
		panic("stream: handler is required")
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 15 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 60 * time.Second
	}
	return &Channel{
		url:     url,
		config:  config,
		handler: handler,
		st:      int32(StateConnecting),
	}
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	return State(atomic.LoadInt32(&c.st))
}

func (c *Channel) setState(s State) {
	atomic.StoreInt32(&c.st, int32(s))
}

// transition only moves out of Open/Connecting; a terminal state sticks.
func (c *Channel) transition(to State) bool {
	for {
		cur := atomic.LoadInt32(&c.st)
		if State(cur) == StateClosed || State(cur) == StateErrored {
			return false
		}
		if atomic.CompareAndSwapInt32(&c.st, cur, int32(to)) {
			return true
		}
	}
}

// Connect dials the backend and starts the read and ping loops.
func (c *Channel) Connect(ctx context.Context) error {
	if c.State() != StateConnecting {
		return errors.New("stream: channel already used")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setState(StateErrored)
		return errors.Wrapf(err, "stream: dial %s", c.url)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// pongs refresh the read deadline so an idle but healthy connection
	// survives quiet periods
	_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setState(StateOpen)

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop(loopCtx)

	logger.Infof("stream: connected to %s", c.url)
	return nil
}

// Close shuts the channel down and waits for its goroutines. Safe to call
// more than once and safe on an already-errored channel.
func (c *Channel) Close() error {
	c.transition(StateClosed)
	if c.cancel != nil {
		c.cancel()
	}

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		logger.Warnf("stream: timed out waiting for loops to exit")
	}
	return err
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	defer func() {
		// a panic below must not reach the owner
		if r := recover(); r != nil {
			logger.Errorf("stream: read loop panic recovered: %v", r)
			c.transition(StateErrored)
		}
	}()

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil || c.State() != StateOpen {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			// error path: stop dispatching, do not throw into caller code
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("stream: read error: %v", err)
			}
			c.transition(StateErrored)
			return
		}

		update, err := decodeFrame(data)
		if err != nil {
			c.noteParseError(err, data)
			continue
		}
		c.handler(update)
	}
}

func (c *Channel) pingLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()
			if conn == nil || c.State() != StateOpen {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warnf("stream: ping failed: %v", err)
				c.transition(StateErrored)
				return
			}
		}
	}
}

// noteParseError counts and throttles malformed-frame logging so a noisy
// proxy cannot flood the log.
func (c *Channel) noteParseError(err error, data []byte) {
	atomic.AddUint64(&c.parseErrCount, 1)

	c.parseErrMu.Lock()
	shouldLog := c.lastParseErrLog.IsZero() || time.Since(c.lastParseErrLog) > 5*time.Second
	if shouldLog {
		c.lastParseErrLog = time.Now()
	}
	c.parseErrMu.Unlock()

	if shouldLog {
		logger.Warnf("stream: dropped malformed frame: %v (len=%d preview=%q)",
			err, len(data), truncate(string(data), 200))
	}
}

// ParseErrorCount reports how many frames were dropped as malformed.
func (c *Channel) ParseErrorCount() uint64 {
	return atomic.LoadUint64(&c.parseErrCount)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// frame is the wire shape of one push message: a discriminated update for
// exactly one named slice.
type frame struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func decodeFrame(data []byte) (state.Update, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return state.Update{}, errors.Wrap(err, "frame")
	}

	switch f.Kind {
	case "portfolio":
		var v domain.Portfolio
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return state.Update{}, errors.Wrap(err, "portfolio payload")
		}
		return state.Update{Kind: state.KindPortfolio, Value: v}, nil
	case "positions":
		var v []domain.Trade
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return state.Update{}, errors.Wrap(err, "positions payload")
		}
		return state.Update{Kind: state.KindOpenTrades, Value: v}, nil
	case "trades":
		var v []domain.Trade
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return state.Update{}, errors.Wrap(err, "trades payload")
		}
		return state.Update{Kind: state.KindClosedTrades, Value: v}, nil
	case "signals":
		var v []domain.Signal
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return state.Update{}, errors.Wrap(err, "signals payload")
		}
		return state.Update{Kind: state.KindSignals, Value: v}, nil
	case "bot_status":
		var v domain.BotStatus
		if err := json.Unmarshal(f.Data, &v); err != nil {
			return state.Update{}, errors.Wrap(err, "bot_status payload")
		}
		return state.Update{Kind: state.KindBotStatus, Value: v}, nil
	default:
		return state.Update{}, errors.Errorf("unknown kind %q", f.Kind)
	}
}
