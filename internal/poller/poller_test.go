package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeboard/botclient/internal/api"
	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/internal/state"
)

// fakeBackend returns scripted responses per endpoint.
type fakeBackend struct {
	status       domain.BotStatus
	statusErr    error
	open         []domain.Trade
	openErr      error
	closed       []domain.Trade
	closedErr    error
	settings     domain.Settings
	settingsErr  error
	signals      []domain.Signal
	signalsErr   error
	statusCalls  int32
	closedCalls  int32
}

func (f *fakeBackend) GetStatus(ctx context.Context) (domain.BotStatus, error) {
	atomic.AddInt32(&f.statusCalls, 1)
	return f.status, f.statusErr
}
func (f *fakeBackend) GetOpenTrades(ctx context.Context) ([]domain.Trade, error) {
	return f.open, f.openErr
}
func (f *fakeBackend) GetClosedTrades(ctx context.Context) ([]domain.Trade, error) {
	atomic.AddInt32(&f.closedCalls, 1)
	return f.closed, f.closedErr
}
func (f *fakeBackend) GetSettings(ctx context.Context) (domain.Settings, error) {
	return f.settings, f.settingsErr
}
func (f *fakeBackend) GetSignals(ctx context.Context) ([]domain.Signal, error) {
	return f.signals, f.signalsErr
}

func healthyBackend() *fakeBackend {
	return &fakeBackend{
		status: domain.BotStatus{Running: true},
		open:   []domain.Trade{{ID: "t1", Status: domain.TradeStatusOpen}},
		closed: []domain.Trade{{ID: "t2", Status: domain.TradeStatusClosed}},
		signals: []domain.Signal{
			{Symbol: "BTCUSDT", Call: domain.SignalLong},
		},
	}
}

func TestRunCycle_FeedsEveryEndpointIntoStore(t *testing.T) {
	store := state.NewStore()
	p := New(healthyBackend(), store, time.Second)

	p.RunCycle(context.Background())

	assert.True(t, store.IsActive())
	assert.False(t, store.IsLoading())
	assert.Len(t, store.OpenTrades(), 1)
	assert.Len(t, store.ClosedTrades(), 1)
	assert.Len(t, store.Signals(), 1)
	assert.Nil(t, store.CurrentNotice())
}

func TestRunCycle_ApplicationFailureIsWarning(t *testing.T) {
	backend := healthyBackend()
	backend.closedErr = &api.APIError{App: true, Message: "Database connection error"}
	store := state.NewStore()

	New(backend, store, time.Second).RunCycle(context.Background())

	notice := store.CurrentNotice()
	require.NotNil(t, notice)
	assert.Equal(t, state.SeverityWarning, notice.Severity)
	assert.Contains(t, notice.Message, "Database connection error")
	assert.Equal(t, state.KindClosedTrades, notice.Source)

	// other collections still populated from their own successful calls
	assert.Len(t, store.OpenTrades(), 1)
	assert.True(t, store.IsActive())
	assert.Empty(t, store.ClosedTrades())
}

func TestRunCycle_TransportFailureIsError(t *testing.T) {
	backend := healthyBackend()
	backend.statusErr = errors.New("dial tcp: connection refused")
	store := state.NewStore()

	New(backend, store, time.Second).RunCycle(context.Background())

	notice := store.CurrentNotice()
	require.NotNil(t, notice)
	assert.Equal(t, state.SeverityError, notice.Severity)
	assert.Equal(t, UnreachableMessage, notice.Message)

	// the failing endpoint did not block the rest
	assert.Len(t, store.OpenTrades(), 1)
	assert.Len(t, store.ClosedTrades(), 1)
}

func TestRunCycle_TransportOutranksWarning(t *testing.T) {
	backend := healthyBackend()
	backend.openErr = &api.APIError{App: true, Message: "positions cache cold"}
	backend.settingsErr = errors.New("timeout")
	store := state.NewStore()

	New(backend, store, time.Second).RunCycle(context.Background())

	notice := store.CurrentNotice()
	require.NotNil(t, notice)
	assert.Equal(t, state.SeverityError, notice.Severity)
	assert.Equal(t, UnreachableMessage, notice.Message)
}

func TestRunCycle_SuccessClearsNotice(t *testing.T) {
	backend := healthyBackend()
	backend.closedErr = &api.APIError{App: true, Message: "transient"}
	store := state.NewStore()
	p := New(backend, store, time.Second)

	p.RunCycle(context.Background())
	require.NotNil(t, store.CurrentNotice())

	backend.closedErr = nil
	p.RunCycle(context.Background())
	assert.Nil(t, store.CurrentNotice())
}

func TestStartStop_LoopRunsAndHalts(t *testing.T) {
	backend := healthyBackend()
	store := state.NewStore()
	p := New(backend, store, 20*time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&backend.statusCalls) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&backend.statusCalls), int32(3), "loop should keep cycling")

	p.Stop()
	calls := atomic.LoadInt32(&backend.statusCalls)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&backend.statusCalls), "no cycles after Stop")
}

func TestRefreshNow_TriggersImmediateCycle(t *testing.T) {
	backend := healthyBackend()
	store := state.NewStore()
	p := New(backend, store, time.Hour) // interval effectively never fires

	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&backend.statusCalls) < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&backend.statusCalls), "initial cycle")

	p.RefreshNow()
	deadline = time.Now().Add(time.Second)
	for atomic.LoadInt32(&backend.statusCalls) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&backend.statusCalls), "nudge ran a cycle")
}
