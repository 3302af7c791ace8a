package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RouteRow is one optimizer route as displayed.
type RouteRow struct {
	Block      uint64
	Legs       int
	Value      string
	Reason     string
	Iterations int
}

// RoutesComponent renders the most recent optimizer routes.
type RoutesComponent struct {
	rows    []RouteRow
	maxRows int
}

// NewRoutesComponent keeps the last maxRows routes.
func NewRoutesComponent(maxRows int) *RoutesComponent {
	return &RoutesComponent{maxRows: maxRows}
}

// Add prepends a route.
func (r *RoutesComponent) Add(row RouteRow) {
	r.rows = append([]RouteRow{row}, r.rows...)
	if len(r.rows) > r.maxRows {
		r.rows = r.rows[:r.maxRows]
	}
}

// Clear removes every row.
func (r *RoutesComponent) Clear() { r.rows = nil }

// View renders the routes list.
func (r *RoutesComponent) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0EA5E9"))
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var b strings.Builder
	b.WriteString(header.Render("MULTI-POOL ROUTES"))
	b.WriteString("\n")

	if len(r.rows) == 0 {
		b.WriteString(muted.Render("No routes yet..."))
		return b.String()
	}

	for _, row := range r.rows {
		reason := row.Reason
		if reason != "converged" {
			reason = warn.Render(reason)
		}
		b.WriteString(fmt.Sprintf("#%-9d %d legs  value %-16s %s after %d iterations\n",
			row.Block, row.Legs, row.Value, reason, row.Iterations))
	}
	return strings.TrimRight(b.String(), "\n")
}
