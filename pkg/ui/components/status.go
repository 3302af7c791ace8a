package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// staleAfter marks a dependency that has been silent for a few slots.
const staleAfter = 45 * time.Second

var (
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	staleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

// ConnectionStatus is the last reported state of one dependency.
type ConnectionStatus struct {
	Name       string
	Connected  bool
	Detail     string
	LastUpdate time.Time
}

// StatusComponent tracks dependencies in the order they first report.
type StatusComponent struct {
	order []string
	byKey map[string]ConnectionStatus
}

func NewStatusComponent() *StatusComponent {
	return &StatusComponent{byKey: make(map[string]ConnectionStatus)}
}

// Update records status, replacing any earlier report under the same name.
func (s *StatusComponent) Update(status ConnectionStatus) {
	if _, seen := s.byKey[status.Name]; !seen {
		s.order = append(s.order, status.Name)
	}
	s.byKey[status.Name] = status
}

func (s *StatusComponent) Get(name string) (ConnectionStatus, bool) {
	st, ok := s.byKey[name]
	return st, ok
}

// View renders one line per dependency. Reports older than staleAfter are
// shown as stale even if the last one said connected.
func (s *StatusComponent) View(now time.Time) string {
	if len(s.order) == 0 {
		return "No connections"
	}

	lines := make([]string, 0, len(s.order))
	for _, name := range s.order {
		st := s.byKey[name]
		age := now.Sub(st.LastUpdate)

		var badge string
		switch {
		case !st.Connected:
			badge = downStyle.Render("○ down")
		case !st.LastUpdate.IsZero() && age > staleAfter:
			badge = staleStyle.Render("◐ stale")
		default:
			badge = upStyle.Render("● up")
		}

		line := fmt.Sprintf("├─ %s: %s", name, badge)
		if st.Detail != "" {
			line += " (" + st.Detail + ")"
		}
		if !st.LastUpdate.IsZero() {
			line += fmt.Sprintf(" %s ago", age.Truncate(time.Second))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
