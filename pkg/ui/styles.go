package ui

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/blockviz/business/blocks/app"
)

var (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorSecondary = lipgloss.Color("#10B981")
	ColorDanger    = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorBorder    = lipgloss.Color("#374151")
)

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorPrimary).
			Padding(0, 2)

	MutedValue = lipgloss.NewStyle().Foreground(ColorMuted)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	badge = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1)
)

// modeBadge renders LIVE while the window follows the tip, HISTORICAL otherwise.
func modeBadge(live bool) string {
	if live {
		return badge.Background(ColorSecondary).Render("LIVE")
	}
	return badge.Background(ColorWarning).Render("HISTORICAL")
}

// feedStyle colors the feed status: green when subscribed, amber while
// polling, red when the feed is not running.
func feedStyle(s app.FeedStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch s {
	case app.FeedSubscribed:
		return base.Foreground(ColorSecondary)
	case app.FeedPolling:
		return base.Foreground(ColorWarning)
	default:
		return base.Foreground(ColorDanger)
	}
}

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

// loadingIndicator animates off the wall clock; the status bar redraws on
// every tick.
func loadingIndicator(now time.Time) string {
	frame := spinnerFrames[int(now.UnixMilli()/150)%len(spinnerFrames)]
	return lipgloss.NewStyle().Foreground(ColorWarning).Bold(true).Render(frame + " Loading")
}
