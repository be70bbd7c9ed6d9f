package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// L1GroupRow summarises the visible L2 blocks of one L1 block.
type L1GroupRow struct {
	Known    bool
	L1Number uint64
	L1Hash   string
	L2Count  int
	L2First  uint64 // highest L2 number in the group
	L2Last   uint64 // lowest L2 number in the group
	Detail   string // L1 block details when an L1 endpoint is configured
}

// L1GroupsComponent renders the L1 grouping with a selection cursor.
type L1GroupsComponent struct {
	rows   []L1GroupRow
	cursor int
}

// NewL1GroupsComponent creates a new L1 groups component.
func NewL1GroupsComponent() *L1GroupsComponent {
	return &L1GroupsComponent{}
}

// Update replaces the rows, keeping the cursor on the same L1 block when
// it is still present.
func (g *L1GroupsComponent) Update(rows []L1GroupRow) {
	var selected *L1GroupRow
	if sel, ok := g.Selected(); ok {
		selected = &sel
	}
	g.rows = rows
	g.cursor = 0
	if selected == nil {
		return
	}
	for i, r := range rows {
		if r.Known == selected.Known && r.L1Number == selected.L1Number {
			g.cursor = i
			return
		}
	}
}

// SetDetail attaches L1 details to the row for l1Number.
func (g *L1GroupsComponent) SetDetail(l1Number uint64, detail string) {
	for i := range g.rows {
		if g.rows[i].Known && g.rows[i].L1Number == l1Number {
			g.rows[i].Detail = detail
		}
	}
}

// ScrollUp moves the cursor up.
func (g *L1GroupsComponent) ScrollUp() {
	if g.cursor > 0 {
		g.cursor--
	}
}

// ScrollDown moves the cursor down.
func (g *L1GroupsComponent) ScrollDown() {
	if g.cursor < len(g.rows)-1 {
		g.cursor++
	}
}

// Selected returns the row under the cursor.
func (g *L1GroupsComponent) Selected() (L1GroupRow, bool) {
	if g.cursor < 0 || g.cursor >= len(g.rows) {
		return L1GroupRow{}, false
	}
	return g.rows[g.cursor], true
}

// View renders the groups.
func (g *L1GroupsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	selStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#4C1D95"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("L1 ORIGINS"))
	sb.WriteString("\n\n")

	if len(g.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No visible blocks"))
		return sb.String()
	}

	for i, row := range g.rows {
		name := "unknown origin"
		if row.Known {
			name = fmt.Sprintf("L1 #%d %s", row.L1Number, shortHash(row.L1Hash))
		}
		line := fmt.Sprintf("%-30s %3d L2 blocks  %d..%d", name, row.L2Count, row.L2Last, row.L2First)
		if i == g.cursor {
			sb.WriteString(selStyle.Render("▶ " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
		if row.Detail != "" {
			sb.WriteString(dimStyle.Render("    " + row.Detail))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
