// Package poller periodically pulls status, trades and settings from the
// backend and feeds the state store. Each endpoint's failure is classified
// on its own: a server-declared failure is a recoverable warning, a
// transport failure after retries is an error. One endpoint failing never
// blocks the others from updating.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/tradeboard/botclient/internal/api"
	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/internal/state"
	"github.com/tradeboard/botclient/pkg/logger"
	"github.com/tradeboard/botclient/pkg/sigchan"
)

// UnreachableMessage is the generic user-facing text for transport
// failures; the raw error stays in the log, not in the UI.
const UnreachableMessage = "unable to connect"

// Backend is the slice of the API client the poller consumes.
type Backend interface {
	GetStatus(ctx context.Context) (domain.BotStatus, error)
	GetOpenTrades(ctx context.Context) ([]domain.Trade, error)
	GetClosedTrades(ctx context.Context) ([]domain.Trade, error)
	GetSettings(ctx context.Context) (domain.Settings, error)
	GetSignals(ctx context.Context) ([]domain.Signal, error)
}

// Poller drives the pull side of state synchronization.
type Poller struct {
	backend  Backend
	store    *state.Store
	interval time.Duration

	refresh *sigchan.Chan
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(backend Backend, store *state.Store, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		backend:  backend,
		store:    store,
		interval: interval,
		refresh:  sigchan.New(1),
	}
}

// Start launches the poll loop: one immediate cycle, then one per
// interval, plus any RefreshNow nudges in between.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		p.cancel = cancel

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()

			p.RunCycle(loopCtx)

			ticker := time.NewTicker(p.interval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-ticker.C:
					p.RunCycle(loopCtx)
				case <-p.refresh.C():
					p.RunCycle(loopCtx)
				}
			}
		}()
	})
}

// RefreshNow nudges the loop to run a cycle immediately.
func (p *Poller) RefreshNow() {
	p.refresh.Emit()
}

// Stop halts the loop and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
}

// RunCycle polls every endpoint once, sequentially. Failures are
// collected and the worst one becomes the store's active notice; a fully
// clean cycle clears it.
func (p *Poller) RunCycle(ctx context.Context) {
	type result struct {
		source   state.Kind
		severity state.Severity
		message  string
	}
	var failures []result

	classify := func(source state.Kind, err error) {
		if apiErr, ok := api.AsAPIError(err); ok && apiErr.App {
			logger.Warnf("poll: %s declined: %s", source, apiErr.Message)
			failures = append(failures, result{source, state.SeverityWarning, apiErr.Message})
			return
		}
		logger.Errorf("poll: %s unreachable: %v", source, err)
		failures = append(failures, result{source, state.SeverityError, UnreachableMessage})
	}

	if status, err := p.backend.GetStatus(ctx); err != nil {
		classify(state.KindBotStatus, err)
	} else {
		p.store.ApplyPoll(state.KindBotStatus, status)
	}

	if trades, err := p.backend.GetOpenTrades(ctx); err != nil {
		classify(state.KindOpenTrades, err)
	} else {
		p.store.ApplyPoll(state.KindOpenTrades, trades)
	}

	if trades, err := p.backend.GetClosedTrades(ctx); err != nil {
		classify(state.KindClosedTrades, err)
	} else {
		p.store.ApplyPoll(state.KindClosedTrades, trades)
	}

	if settings, err := p.backend.GetSettings(ctx); err != nil {
		classify(state.KindSettings, err)
	} else {
		p.store.ApplyPoll(state.KindSettings, settings)
	}

	if signals, err := p.backend.GetSignals(ctx); err != nil {
		classify(state.KindSignals, err)
	} else {
		p.store.ApplyPoll(state.KindSignals, signals)
	}

	if len(failures) == 0 {
		p.store.ClearNotice()
		return
	}

	// transport errors outrank warnings
	worst := failures[0]
	for _, f := range failures[1:] {
		if worst.severity != state.SeverityError && f.severity == state.SeverityError {
			worst = f
		}
	}
	p.store.SetNotice(worst.severity, worst.source, worst.message)
}
