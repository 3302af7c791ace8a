package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arbitrage/internal/asset"
	"github.com/fd1az/cfmm-arbitrage/pkg/ui/components"
)

const (
	maxErrors   = 3
	maxActivity = 6
)

// ErrorEntry is a scan failure with its time.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	opportunities *components.OpportunitiesComponent
	routes        *components.RoutesComponent
	stats         *components.StatsComponent
	status        *components.StatusComponent
	tokens        *asset.Registry
	keys          KeyMap
	help          help.Model

	quitting     bool
	paused       bool
	width        int
	height       int
	currentBlock uint64
	gasGwei      float64
	lastScan     time.Time
	errors       []ErrorEntry
	activity     []string
	now          func() time.Time
}

// New creates the dashboard model.
func New(tokens *asset.Registry) Model {
	if tokens == nil {
		tokens = asset.DefaultRegistry()
	}
	return Model{
		opportunities: components.NewOpportunitiesComponent(100, 12),
		routes:        components.NewRoutesComponent(5),
		stats:         components.NewStatsComponent(),
		status:        components.NewStatusComponent(),
		tokens:        tokens,
		keys:          DefaultKeyMap(),
		help:          help.New(),
		now:           time.Now,
	}
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Clear):
			m.opportunities.Clear()
			m.routes.Clear()
		case key.Matches(msg, m.keys.Up):
			m.opportunities.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.opportunities.ScrollDown()
		case key.Matches(msg, m.keys.ClearErrors):
			m.errors = nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case TickMsg:
		return m, tickCmd()

	case OpportunitiesMsg:
		if m.paused {
			return m, nil
		}
		rows := make([]components.OpportunityRow, 0, len(msg.Results))
		for _, r := range msg.Results {
			rows = append(rows, m.opportunityRow(r))
		}
		m.opportunities.Add(rows...)

	case RouteMsg:
		if m.paused || msg.Route == nil {
			return m, nil
		}
		r := msg.Route
		m.routes.Add(components.RouteRow{
			Block:      r.Block,
			Legs:       len(r.Legs),
			Value:      m.formatFloat(r.QuoteToken, r.ValueQuote),
			Reason:     r.Reason,
			Iterations: r.Iterations,
		})

	case ScanMsg:
		st := m.stats.Stats()
		st.Scans++
		st.Candidates += int64(msg.Candidates)
		st.Opportunities += int64(msg.Opportunities)
		st.Routes += int64(msg.Routes)
		st.Pools = msg.Pools
		st.FailedPools = msg.FailedPools
		st.LastDuration = msg.Duration
		st.TotalDuration += msg.Duration
		st.Rejections = msg.Rejections
		m.stats.Update(st)

		m.currentBlock = msg.Block
		m.gasGwei = msg.GasGwei
		m.lastScan = m.now()
		m.activity = m.addActivity(fmt.Sprintf("Block #%d: %d pairs, %d opportunities in %s",
			msg.Block, msg.Pairs, msg.Opportunities, msg.Duration.Round(time.Microsecond)))

	case ScanErrorMsg:
		st := m.stats.Stats()
		st.Errors++
		m.stats.Update(st)

		m.errors = append(m.errors, ErrorEntry{
			Message:   fmt.Sprintf("block #%d: %v", msg.Block, msg.Err),
			Timestamp: m.now(),
		})
		if len(m.errors) > maxErrors {
			m.errors = m.errors[len(m.errors)-maxErrors:]
		}

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       msg.Name,
			Connected:  msg.Connected,
			Detail:     msg.Detail,
			LastUpdate: m.now(),
		})
	}

	return m, nil
}

func (m Model) opportunityRow(r *domain.TradeResult) components.OpportunityRow {
	row := components.OpportunityRow{
		Block:     r.Block,
		Pair:      m.tokens.Symbol(r.BaseToken) + "/" + m.tokens.Symbol(r.QuoteToken),
		Source:    string(r.Source),
		Input:     m.tokens.Format(r.QuoteToken, r.InputAmount),
		NetProfit: m.tokens.Format(r.QuoteToken, r.NetProfit),
		SpreadBps: r.SpreadBps.InexactFloat64(),
		Clamped:   r.Clamped,
	}
	if r.ProfitPctDefined {
		row.ProfitPct = r.ProfitPct.StringFixed(2)
	}
	return row
}

// formatFloat renders a raw float amount of token in whole units.
func (m Model) formatFloat(token common.Address, raw float64) string {
	t, ok := m.tokens.Get(token)
	if !ok {
		return fmt.Sprintf("%.6g %s", raw, m.tokens.Symbol(token))
	}
	v := decimal.NewFromFloat(raw).Shift(-int32(t.Decimals()))
	return v.StringFixed(6) + " " + t.Symbol()
}

func (m Model) addActivity(line string) []string {
	feed := append(m.activity, fmt.Sprintf("[%s] %s", m.now().Format("15:04:05"), line))
	if len(feed) > maxActivity {
		feed = feed[len(feed)-maxActivity:]
	}
	return feed
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	width := m.width
	if width <= 0 {
		width = 100
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(" CFMM Arbitrage "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	left := strings.Join([]string{m.stats.View(), m.status.View(m.now()), m.renderActivity()}, "\n\n")
	right := m.opportunities.View() + "\n\n" + m.routes.View()

	if width > 120 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			BoxStyle.Width(width/3-2).Render(left),
			BoxStyle.Width(width*2/3-2).Render(right),
		))
	} else {
		b.WriteString(BoxStyle.Width(width - 4).Render(left))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width - 4).Render(right))
	}
	b.WriteString("\n\n")

	if len(m.errors) > 0 {
		b.WriteString(ErrorStyle.Bold(true).Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, e := range m.errors {
			ago := m.now().Sub(e.Timestamp).Round(time.Second)
			b.WriteString(ErrorStyle.Render("  • " + e.Message))
			b.WriteString(MutedValue.Render(fmt.Sprintf(" (%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.paused {
		b.WriteString(PausedStyle.Render("PAUSED"))
		b.WriteString(" • ")
	}
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m Model) renderActivity() string {
	var b strings.Builder
	b.WriteString(SectionStyle.Render("LIVE ACTIVITY"))
	b.WriteString("\n")
	if len(m.activity) == 0 {
		b.WriteString(MutedValue.Render("  Waiting for the first scan..."))
		return b.String()
	}
	for i, line := range m.activity {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(BlockStyle.Render("  " + line))
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{fmt.Sprintf("Block: #%d", m.currentBlock)}
	if m.gasGwei > 0 {
		parts = append(parts, fmt.Sprintf("Gas: %.1f gwei", m.gasGwei))
	}
	if st := m.stats.Stats(); st.Scans > 0 {
		parts = append(parts, fmt.Sprintf("Scans: %d", st.Scans))
	}
	if !m.lastScan.IsZero() {
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Last scan: %s ago", m.now().Sub(m.lastScan).Round(time.Second))))
	}
	return strings.Join(parts, "  │  ")
}

// Dashboard runs the model in a Bubble Tea program.
type Dashboard struct {
	program *tea.Program
}

// NewDashboard creates a dashboard. Pass tea.WithAltScreen() for full
// screen mode.
func NewDashboard(tokens *asset.Registry, opts ...tea.ProgramOption) *Dashboard {
	return &Dashboard{program: tea.NewProgram(New(tokens), opts...)}
}

// Run blocks until the user quits or Quit is called.
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

// Send delivers msg to the running program.
func (d *Dashboard) Send(msg tea.Msg) {
	d.program.Send(msg)
}

// Quit stops the program.
func (d *Dashboard) Quit() {
	d.program.Quit()
}
