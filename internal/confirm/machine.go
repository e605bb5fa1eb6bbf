// Package confirm drives the two-step, time-boxed order flow: a draft is
// submitted, the server answers with a short-lived confirmation token and
// a human-readable summary, and only echoing that token back executes the
// order. The window bounds how long a stale price assessment can be acted
// on; the client enforces the expiry itself rather than trusting the
// round-trip to discover it.
package confirm

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tradeboard/botclient/internal/api"
	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/internal/state"
	"github.com/tradeboard/botclient/pkg/logger"
)

// Validation failures, rejected before any network call.
var (
	ErrInvalidQuantity = errors.New("order quantity must be positive")
	ErrInvalidPrice    = errors.New("order price must be positive")
	ErrNoPending       = errors.New("no pending confirmation")
	ErrTokenMismatch   = errors.New("token does not match the pending confirmation")
	ErrExpired         = errors.New("confirmation window has elapsed")
)

// Outcome records how the last confirmation round ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeExecuted  Outcome = "executed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
)

// OrderAPI is the slice of the backend client the machine needs.
type OrderAPI interface {
	PlaceOrder(ctx context.Context, draft domain.OrderDraft) (domain.Confirmation, error)
	ConfirmOrder(ctx context.Context, token string) (api.OrderResult, error)
	CancelConfirmation(ctx context.Context, token string) error
}

// Config tunes the machine.
type Config struct {
	// Window is the fallback confirmation lifetime when the server omits
	// expires_at. Observed server default is 60 seconds.
	Window time.Duration
	// Tick is how often the countdown is recomputed. At most one second.
	Tick time.Duration
}

func DefaultConfig() Config {
	return Config{Window: 60 * time.Second, Tick: time.Second}
}

// Machine holds at most one pending confirmation. Submitting a new draft
// discards any prior pending one.
type Machine struct {
	api    OrderAPI
	store  *state.Store
	config Config

	// OnExpired fires after a local auto-expire. Optional.
	OnExpired func(conf domain.Confirmation)
	// OnCountdown fires on every tick with the remaining window. Optional.
	OnCountdown func(remaining time.Duration)

	mu            sync.Mutex
	pending       *domain.Confirmation
	stopCountdown chan struct{}
	outcome       Outcome

	now func() time.Time
}

func NewMachine(orderAPI OrderAPI, store *state.Store, config Config) *Machine {
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	if config.Tick <= 0 || config.Tick > time.Second {
		config.Tick = time.Second
	}
	return &Machine{
		api:    orderAPI,
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// Pending returns a copy of the pending confirmation, if any.
func (m *Machine) Pending() *domain.Confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	c := *m.pending
	return &c
}

// LastOutcome reports how the most recent round ended.
func (m *Machine) LastOutcome() Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcome
}

// SubmitDraft validates the draft locally, sends it, and arms the
// countdown for the returned confirmation. Any previously pending
// confirmation is discarded: only one may exist.
func (m *Machine) SubmitDraft(ctx context.Context, draft domain.OrderDraft) (domain.Confirmation, error) {
	if !draft.Quantity.IsPositive() {
		return domain.Confirmation{}, ErrInvalidQuantity
	}
	if draft.Type != domain.OrderTypeMarket && !draft.Price.IsPositive() {
		return domain.Confirmation{}, ErrInvalidPrice
	}

	conf, err := m.api.PlaceOrder(ctx, draft)
	if err != nil {
		return domain.Confirmation{}, err
	}
	if conf.ExpiresAt.IsZero() {
		conf.ExpiresAt = m.now().Add(m.config.Window)
	}

	m.mu.Lock()
	m.discardLocked()
	m.pending = &conf
	m.outcome = OutcomeNone
	m.armCountdownLocked(conf)
	m.mu.Unlock()

	logger.Infof("confirm: pending %q (%s), expires %s", conf.Summary, conf.Token, conf.ExpiresAt.Format(time.RFC3339))
	return conf, nil
}

// Confirm echoes the token back to execute the order. The expiry is
// checked locally first: a dead token never leaves the client. The call
// is made exactly once; confirming a real-money order is never retried.
// Whatever the result, the pending confirmation is cleared.
func (m *Machine) Confirm(ctx context.Context, token string) (api.OrderResult, error) {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return api.OrderResult{}, ErrNoPending
	}
	if m.pending.Token != token {
		m.mu.Unlock()
		return api.OrderResult{}, ErrTokenMismatch
	}
	if m.pending.Expired(m.now()) {
		conf := *m.pending
		m.discardLocked()
		m.outcome = OutcomeExpired
		m.mu.Unlock()
		logger.Warnf("confirm: %q expired before confirm was sent", conf.Summary)
		return api.OrderResult{}, ErrExpired
	}
	m.mu.Unlock()

	result, err := m.api.ConfirmOrder(ctx, token)

	m.mu.Lock()
	m.discardLocked()
	if err != nil {
		m.outcome = OutcomeNone // back to Idle; the error is the caller's to surface
		m.mu.Unlock()
		return api.OrderResult{}, err
	}
	m.outcome = OutcomeExecuted
	m.mu.Unlock()

	if m.store != nil {
		if result.Order != nil {
			m.store.RecordOrder(*result.Order)
		}
		if result.Trade != nil {
			m.store.RecordTrade(*result.Trade)
		}
	}
	return result, nil
}

// Cancel is the explicit user path out: clear pending state, release the
// token server-side on a best-effort basis.
func (m *Machine) Cancel(ctx context.Context) {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return
	}
	token := m.pending.Token
	m.discardLocked()
	m.outcome = OutcomeCancelled
	m.mu.Unlock()

	_ = m.api.CancelConfirmation(ctx, token)
}

// Stop releases the countdown timer. Call on teardown so a dangling
// auto-expire cannot mutate a discarded machine.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discardLocked()
}

// discardLocked clears pending state and stops its countdown. Caller
// holds m.mu.
func (m *Machine) discardLocked() {
	if m.stopCountdown != nil {
		close(m.stopCountdown)
		m.stopCountdown = nil
	}
	m.pending = nil
}

// armCountdownLocked starts the per-confirmation countdown goroutine.
// Caller holds m.mu.
func (m *Machine) armCountdownLocked(conf domain.Confirmation) {
	stop := make(chan struct{})
	m.stopCountdown = stop

	go func() {
		ticker := time.NewTicker(m.config.Tick)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				remaining := conf.Remaining(m.now())
				if m.OnCountdown != nil {
					m.OnCountdown(remaining)
				}
				if remaining > 0 {
					continue
				}

				// window elapsed: expire locally, no network call
				m.mu.Lock()
				if m.pending == nil || m.pending.Token != conf.Token {
					m.mu.Unlock()
					return
				}
				m.discardLocked()
				m.outcome = OutcomeExpired
				m.mu.Unlock()

				logger.Infof("confirm: %q expired locally", conf.Summary)
				if m.OnExpired != nil {
					m.OnExpired(conf)
				}
				return
			}
		}
	}()
}
