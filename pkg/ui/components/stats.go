package components

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds running scan statistics.
type Stats struct {
	Scans         int64
	Errors        int64
	Candidates    int64
	Opportunities int64
	Routes        int64
	Pools         int
	FailedPools   int
	LastDuration  time.Duration
	TotalDuration time.Duration
	Rejections    map[string]int64
}

// AvgScan returns the mean scan latency.
func (s Stats) AvgScan() time.Duration {
	if s.Scans == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Scans)
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update replaces the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats { return s.stats }

// View renders the stats component.
func (s *StatsComponent) View() string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0EA5E9"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	st := s.stats
	errs := value.Render(fmt.Sprintf("%d", st.Errors))
	if st.Errors > 0 {
		errs = bad.Render(fmt.Sprintf("%d", st.Errors))
	}

	var b strings.Builder
	b.WriteString(header.Render("STATS"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Scans: %s  Errors: %s  Pools: %s (%d failed)\n",
		value.Render(fmt.Sprintf("%d", st.Scans)), errs, value.Render(fmt.Sprintf("%d", st.Pools)), st.FailedPools)
	fmt.Fprintf(&b, "Candidates: %s  Opportunities: %s  Routes: %s\n",
		value.Render(fmt.Sprintf("%d", st.Candidates)),
		value.Render(fmt.Sprintf("%d", st.Opportunities)),
		value.Render(fmt.Sprintf("%d", st.Routes)))
	fmt.Fprintf(&b, "Last scan: %s  Avg: %s",
		value.Render(st.LastDuration.Round(time.Microsecond).String()),
		value.Render(st.AvgScan().Round(time.Microsecond).String()))

	if len(st.Rejections) > 0 {
		reasons := make([]string, 0, len(st.Rejections))
		for r := range st.Rejections {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)

		b.WriteString("\n")
		b.WriteString(muted.Render("Rejected:"))
		for _, r := range reasons {
			fmt.Fprintf(&b, "\n  %-20s %d", r, st.Rejections[r])
		}
	}
	return b.String()
}
