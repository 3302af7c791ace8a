// Package components provides reusable dashboard components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// OpportunityRow is one opportunity as displayed.
type OpportunityRow struct {
	Block     uint64
	Pair      string
	Source    string
	Input     string
	NetProfit string
	ProfitPct string
	SpreadBps float64
	Clamped   bool
}

// OpportunitiesComponent renders a scrollable list of opportunities,
// newest first.
type OpportunitiesComponent struct {
	rows    []OpportunityRow
	maxRows int
	visible int
	offset  int
}

// NewOpportunitiesComponent keeps at most maxRows rows and shows visible
// of them at a time.
func NewOpportunitiesComponent(maxRows, visible int) *OpportunitiesComponent {
	return &OpportunitiesComponent{maxRows: maxRows, visible: visible}
}

// Add prepends a scan's rows, keeping their rank order.
func (o *OpportunitiesComponent) Add(rows ...OpportunityRow) {
	o.rows = append(append([]OpportunityRow{}, rows...), o.rows...)
	if len(o.rows) > o.maxRows {
		o.rows = o.rows[:o.maxRows]
	}
	o.offset = 0
}

// Len returns the number of stored rows.
func (o *OpportunitiesComponent) Len() int { return len(o.rows) }

// Clear removes every row.
func (o *OpportunitiesComponent) Clear() {
	o.rows = nil
	o.offset = 0
}

// ScrollUp moves the window towards newer rows.
func (o *OpportunitiesComponent) ScrollUp() {
	if o.offset > 0 {
		o.offset--
	}
}

// ScrollDown moves the window towards older rows.
func (o *OpportunitiesComponent) ScrollDown() {
	if o.offset+o.visible < len(o.rows) {
		o.offset++
	}
}

// View renders the opportunities table.
func (o *OpportunitiesComponent) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0EA5E9"))
	profit := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	var b strings.Builder
	b.WriteString(header.Render(fmt.Sprintf("OPPORTUNITIES (%d)", len(o.rows))))
	b.WriteString("\n")

	if len(o.rows) == 0 {
		b.WriteString(muted.Render("No opportunities detected yet..."))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("%-9s %-12s %-10s %-22s %-22s %9s\n", "Block", "Pair", "Source", "In", "Net", "Spread"))

	end := min(o.offset+o.visible, len(o.rows))
	for _, r := range o.rows[o.offset:end] {
		net := r.NetProfit
		if r.ProfitPct != "" {
			net += " (" + r.ProfitPct + "%)"
		}
		in := r.Input
		if r.Clamped {
			in += "*"
		}
		b.WriteString(fmt.Sprintf("%-9d %-12s %-10s %-22s %s %8.1fbp\n",
			r.Block, r.Pair, r.Source, in, profit.Render(fmt.Sprintf("%-22s", net)), r.SpreadBps))
	}

	if len(o.rows) > o.visible {
		b.WriteString(muted.Render(fmt.Sprintf("showing %d-%d of %d  * capped at trade size limit", o.offset+1, end, len(o.rows))))
	}
	return strings.TrimRight(b.String(), "\n")
}
