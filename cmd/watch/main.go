// watch is a terminal dashboard over the trading client: portfolio
// header, open and closed positions, signals, and the poller's health
// notice, refreshed from the state store once a second.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/tradeboard/botclient/internal/api"
	"github.com/tradeboard/botclient/internal/client"
	"github.com/tradeboard/botclient/internal/confirm"
	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/internal/state"
	"github.com/tradeboard/botclient/internal/stream"
	"github.com/tradeboard/botclient/pkg/config"
	"github.com/tradeboard/botclient/pkg/credstore"
	"github.com/tradeboard/botclient/pkg/logger"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	profitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))

	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// snapshot is the per-frame copy of everything the view renders.
type snapshot struct {
	portfolio   domain.Portfolio
	status      domain.BotStatus
	open        []domain.Trade
	closed      []domain.Trade
	signals     []domain.Signal
	notice      *state.Notice
	loading     bool
	lastUpdated time.Time
	streamState stream.State
	pending     *domain.Confirmation
}

type model struct {
	tc   *client.Client
	snap snapshot
	now  time.Time
}

func newModel(tc *client.Client) model {
	return model{tc: tc, now: time.Now()}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.tc.RefreshAll(context.Background())
		case "esc":
			m.tc.CancelOrder(context.Background())
		}
	case tickMsg:
		m.now = time.Time(msg)
		m.snap = m.takeSnapshot()
		return m, tick()
	}
	return m, nil
}

func (m model) takeSnapshot() snapshot {
	store := m.tc.Store()
	return snapshot{
		portfolio:   store.Portfolio(),
		status:      store.BotStatus(),
		open:        store.OpenTrades(),
		closed:      store.ClosedTrades(),
		signals:     store.Signals(),
		notice:      store.CurrentNotice(),
		loading:     store.IsLoading(),
		lastUpdated: store.LastUpdated(),
		streamState: m.tc.StreamState(),
		pending:     m.tc.Confirmer().Pending(),
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("tradeboard watch"))
	b.WriteString("  ")
	b.WriteString(m.renderHealth())
	b.WriteString("\n\n")

	if m.snap.loading {
		b.WriteString(dimStyle.Render("loading..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.renderPortfolio())
	b.WriteString("\n")

	if m.snap.pending != nil {
		b.WriteString(m.renderConfirmation())
		b.WriteString("\n")
	}

	b.WriteString(borderStyle.Render(m.renderOpenTrades()))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(m.renderSignals()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q quit · r refresh · esc cancel pending order"))
	b.WriteString("\n")
	return b.String()
}

func (m model) renderHealth() string {
	parts := []string{}

	if m.snap.status.Running {
		parts = append(parts, profitStyle.Render("bot running"))
	} else {
		parts = append(parts, dimStyle.Render("bot stopped"))
	}
	parts = append(parts, dimStyle.Render("stream "+m.snap.streamState.String()))
	if !m.snap.lastUpdated.IsZero() {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("updated %s ago", m.now.Sub(m.snap.lastUpdated).Truncate(time.Second))))
	}

	if n := m.snap.notice; n != nil {
		switch n.Severity {
		case state.SeverityError:
			parts = append(parts, errStyle.Render("! "+n.Message))
		default:
			parts = append(parts, warnStyle.Render("~ "+n.Message))
		}
	}
	return strings.Join(parts, "  ")
}

func (m model) renderPortfolio() string {
	p := m.snap.portfolio
	plStyle := profitStyle
	if p.TotalPL.IsNegative() {
		plStyle = lossStyle
	}
	return fmt.Sprintf("%s  balance %s   equity %s   pnl %s (%s%%)   win %s%%",
		titleStyle.Render("portfolio"),
		p.Balance.StringFixed(2),
		p.Equity.StringFixed(2),
		plStyle.Render(p.TotalPL.StringFixed(2)),
		p.TotalPLPct.StringFixed(2),
		p.WinRate.StringFixed(1))
}

func (m model) renderConfirmation() string {
	c := m.snap.pending
	remaining := c.Remaining(m.now).Truncate(time.Second)
	return warnStyle.Render(fmt.Sprintf("pending: %s  (%s left, esc to cancel)", c.Summary, remaining))
}

func (m model) renderOpenTrades() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("open positions (%d)", len(m.snap.open))))
	b.WriteString("\n")
	if len(m.snap.open) == 0 {
		b.WriteString(dimStyle.Render("none"))
		return b.String()
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%-12s %-6s %10s %12s %12s", "symbol", "dir", "qty", "entry", "pnl")))
	b.WriteString("\n")
	for _, t := range m.snap.open {
		line := fmt.Sprintf("%-12s %-6s %10s %12s %12s",
			t.Symbol, t.Direction, t.Quantity.String(), t.EntryPrice.StringFixed(2), t.PL.StringFixed(2))
		if t.PL.IsNegative() {
			line = lossStyle.Render(line)
		} else {
			line = profitStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) renderSignals() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("signals (%d)", len(m.snap.signals))))
	b.WriteString("\n")
	if len(m.snap.signals) == 0 {
		b.WriteString(dimStyle.Render("none"))
		return b.String()
	}
	shown := m.snap.signals
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for _, s := range shown {
		call := string(s.Call)
		switch s.Call {
		case domain.SignalLong:
			call = profitStyle.Render("LONG ")
		case domain.SignalShort:
			call = lossStyle.Render("SHORT")
		default:
			call = dimStyle.Render("NEUT ")
		}
		b.WriteString(fmt.Sprintf("%-12s %s  %s%%  %s", s.Symbol, call,
			s.Confidence.StringFixed(0), dimStyle.Render(truncate(s.Reasoning, 60))))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func main() {
	configPath := flag.String("config", "", "config file path (.yaml, .yml or .json)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// logs go to file only; stdout belongs to the TUI
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/watch.log"
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: logFile,
		MaxSize:    cfg.LogMaxSize,
		Quiet:      true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	creds, err := credstore.OpenBadger(cfg.CredentialDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open credential store: %v\n", err)
		os.Exit(1)
	}
	defer creds.Close()

	backend := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, creds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tc := client.New(client.Options{
		Backend:      backend,
		StreamURL:    cfg.WSURL,
		StreamConfig: stream.DefaultConfig(),
		PollInterval: cfg.PollInterval,
		Confirm:      confirm.Config{Window: cfg.ConfirmWindow},
	})
	defer tc.Stop()

	tc.Start(ctx)
	_ = tc.ConnectStream(ctx)

	p := tea.NewProgram(newModel(tc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
}
