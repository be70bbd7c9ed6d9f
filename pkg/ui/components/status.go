package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StaleAfter is how long an endpoint report stays current. The dashboard
// probes every few seconds, so a missed probe or two marks it stale.
const StaleAfter = 15 * time.Second

// ConnectionStatus is the last probe result for one upstream endpoint.
type ConnectionStatus struct {
	Name       string
	Connected  bool
	Mode       string // feed status, e.g. "subscribed" or "polling"
	Latency    time.Duration
	LastBlock  uint64
	LastUpdate time.Time
}

// StatusComponent lists endpoints in the order they first reported.
type StatusComponent struct {
	connections []ConnectionStatus
}

func NewStatusComponent() *StatusComponent {
	return &StatusComponent{}
}

// Update replaces the entry with the same name or appends a new one.
func (s *StatusComponent) Update(status ConnectionStatus) {
	for i := range s.connections {
		if s.connections[i].Name == status.Name {
			s.connections[i] = status
			return
		}
	}
	s.connections = append(s.connections, status)
}

// View renders one line per endpoint as of now.
func (s *StatusComponent) View(now time.Time) string {
	if len(s.connections) == 0 {
		return "No endpoints probed yet"
	}

	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	var sb strings.Builder
	for _, c := range s.connections {
		var state string
		switch {
		case !c.Connected:
			state = bad.Render("○ Unreachable")
		case !c.LastUpdate.IsZero() && now.Sub(c.LastUpdate) > StaleAfter:
			state = warn.Render("◌ Stale")
		default:
			state = ok.Render("● Reachable")
		}

		line := fmt.Sprintf("├─ %s: %s", c.Name, state)
		if c.Mode != "" {
			line += " [" + c.Mode + "]"
		}
		if c.Connected && c.Latency > 0 {
			line += fmt.Sprintf(" (%s)", c.Latency.Round(time.Millisecond))
		}
		if c.LastBlock > 0 {
			line += fmt.Sprintf(" head #%d", c.LastBlock)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
