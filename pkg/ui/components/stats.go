package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds statistics for display.
type Stats struct {
	BlocksSeen       int64
	StoredBlocks     int
	VisibleBlocks    int
	L1Groups         int
	Navigations      int64
	NavigationErrors int64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	errorsDisplay := valueStyle.Render(fmt.Sprintf("%d", s.stats.NavigationErrors))
	if s.stats.NavigationErrors > 0 {
		errorsDisplay = errorStyle.Render(fmt.Sprintf("%d", s.stats.NavigationErrors))
	}

	return style.Render("STATS") + "\n" +
		fmt.Sprintf("Blocks seen: %s  │  Stored: %s  │  Visible: %s  │  L1 groups: %s\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.BlocksSeen)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.StoredBlocks)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.VisibleBlocks)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.L1Groups)),
		) +
		fmt.Sprintf("Navigations: %s  │  Failed: %s",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Navigations)),
			errorsDisplay,
		)
}
