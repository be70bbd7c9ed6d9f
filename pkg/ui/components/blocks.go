// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// BlockRow is one line of the block table. Numeric columns arrive
// pre-formatted so the component only lays them out.
type BlockRow struct {
	Number      uint64
	Hash        string
	TimestampMs uint64
	TxCount     uint64
	GasUsedPct  string // "" when unknown
	BaseFeeGwei string // "" when unknown
	L1Number    string // "" until the origin is resolved
	Current     bool
}

// BlocksComponent renders the visible block window.
type BlocksComponent struct {
	rows  []BlockRow
	title string
	now   func() time.Time
}

// NewBlocksComponent creates a new blocks component.
func NewBlocksComponent() *BlocksComponent {
	return &BlocksComponent{title: "BLOCKS", now: time.Now}
}

// Update replaces the rows.
func (b *BlocksComponent) Update(rows []BlockRow) {
	b.rows = rows
}

// SetTitle sets the header shown above the table.
func (b *BlocksComponent) SetTitle(title string) {
	b.title = title
}

// Len returns the number of rows.
func (b *BlocksComponent) Len() int {
	return len(b.rows)
}

// View renders at most maxRows rows, keeping the current block in view.
func (b *BlocksComponent) View(maxRows int) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	currentStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#4C1D95"))
	l1Style := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(b.title))
	sb.WriteString("\n\n")

	if len(b.rows) == 0 {
		sb.WriteString(dimStyle.Render("  Waiting for blocks..."))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  %-11s  %-13s  %7s  %5s  %8s  %12s  %-11s\n",
		"Block", "Hash", "Age", "Txs", "Gas", "Base fee", "L1 origin"))
	sb.WriteString(dimStyle.Render("  " + strings.Repeat("─", 80)))
	sb.WriteString("\n")

	start, end := visibleRange(len(b.rows), b.currentIndex(), maxRows)
	now := b.now()
	for _, row := range b.rows[start:end] {
		l1 := row.L1Number
		if l1 == "" {
			l1 = "…"
		}
		line := fmt.Sprintf("%-11d  %-13s  %7s  %5d  %8s  %12s  ",
			row.Number,
			shortHash(row.Hash),
			age(now, row.TimestampMs),
			row.TxCount,
			orDash(row.GasUsedPct, "%"),
			orDash(row.BaseFeeGwei, " gwei"),
		)
		if row.Current {
			sb.WriteString(currentStyle.Render("▶ " + line + fmt.Sprintf("%-11s", l1)))
		} else {
			sb.WriteString("  " + line + l1Style.Render(l1))
		}
		sb.WriteString("\n")
	}
	if end-start < len(b.rows) {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  … %d of %d shown", end-start, len(b.rows))))
	}

	return sb.String()
}

func (b *BlocksComponent) currentIndex() int {
	for i, r := range b.rows {
		if r.Current {
			return i
		}
	}
	return 0
}

// visibleRange picks a window of at most limit rows around cur.
func visibleRange(n, cur, limit int) (int, int) {
	if limit <= 0 || n <= limit {
		return 0, n
	}
	start := cur - limit/2
	if start < 0 {
		start = 0
	}
	if start+limit > n {
		start = n - limit
	}
	return start, start + limit
}

func shortHash(h string) string {
	if len(h) < 12 {
		if h == "" {
			return "-"
		}
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}

func age(now time.Time, tsMs uint64) string {
	if tsMs == 0 {
		return "-"
	}
	d := now.Sub(time.UnixMilli(int64(tsMs)))
	switch {
	case d < 0:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func orDash(v, unit string) string {
	if v == "" {
		return "-"
	}
	return v + unit
}
