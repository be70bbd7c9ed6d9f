// Package ui provides the Bubble Tea TUI for the block visualizer.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/pkg/ui/components"
)

// Backend is what the dashboard reads and drives. *app.BlockService
// implements it.
type Backend interface {
	Store() *app.WindowStore
	FeedStatus() app.FeedStatus
	L1Groups() []domain.L1Group
	NavigateToL1(ctx context.Context, l1Number uint64) error
	L1Block(ctx context.Context, number uint64) (domain.L1Block, error)
	LoadOlder(ctx context.Context, count int) error
}

// StartupStep represents a step in the startup process.
type StartupStep struct {
	Name   string
	Status string // "pending", "connecting", "connected", "done", "failed"
}

// Phase represents the current UI phase.
type Phase string

const (
	PhaseWelcome   Phase = "welcome"   // Initial welcome screen
	PhaseStartup   Phase = "startup"   // Loading/connecting
	PhaseDashboard Phase = "dashboard" // Main dashboard
)

// WelcomeDuration is how long the welcome screen shows before auto-advancing.
const WelcomeDuration = 2 * time.Second

const (
	navigationTimeout = 60 * time.Second
	loadOlderCount    = 50
)

var startupOrder = []string{"config", "l2", "snapshot", "feed"}

// ErrorEntry represents an error with timestamp.
type ErrorEntry struct {
	Message   string
	Timestamp time.Time
}

// Model is the main Bubble Tea model for the TUI.
type Model struct {
	ctx context.Context
	svc Backend

	// Components
	blocks *components.BlocksComponent
	groups *components.L1GroupsComponent
	status *components.StatusComponent
	stats  *components.StatsComponent
	keys   KeyMap
	help   help.Model
	input  textinput.Model

	// Phase state
	phase        Phase
	welcomeStart time.Time

	// State
	ready        bool
	quitting     bool
	inputActive  bool
	showGroups   bool
	width        int
	height       int
	state        app.WindowState
	feedStatus   app.FeedStatus
	lastTip      uint64
	blocksSeen   int64
	navigations  int64
	navErrors    int64
	lastUpdate   time.Time
	errors       []ErrorEntry // Persistent error panel (last 3)
	logs         []string     // Recent log messages
	activityFeed []string
	l1Details    map[uint64]string

	// Startup state
	startupComplete bool
	startupSteps    map[string]*StartupStep
	startupTime     time.Time
}

// New creates a new TUI model over svc.
func New(ctx context.Context, svc Backend) Model {
	now := time.Now()

	input := textinput.New()
	input.Placeholder = "block number"
	input.CharLimit = 20
	input.Prompt = "Go to block: "

	return Model{
		ctx:          ctx,
		svc:          svc,
		blocks:       components.NewBlocksComponent(),
		groups:       components.NewL1GroupsComponent(),
		status:       components.NewStatusComponent(),
		stats:        components.NewStatsComponent(),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		input:        input,
		phase:        PhaseWelcome,
		welcomeStart: now,
		logs:         make([]string, 0, 10),
		errors:       make([]ErrorEntry, 0, 3),
		activityFeed: make([]string, 0, 8),
		l1Details:    make(map[uint64]string),
		startupSteps: map[string]*StartupStep{
			"config":   {Name: "Loading configuration", Status: "pending"},
			"l2":       {Name: "Connecting to L2", Status: "pending"},
			"snapshot": {Name: "Restoring block window", Status: "pending"},
			"feed":     {Name: "Starting live feed", Status: "pending"},
		},
		startupTime: now,
	}
}

// Init initializes the TUI model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick every 100ms for smooth animations.
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.inputActive {
			return m.updateInput(msg)
		}
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		// During welcome phase, any other key skips to startup
		if m.phase == PhaseWelcome {
			m.enterStartup()
			return m, tickCmd()
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
		m.refresh()

	case TickMsg:
		if m.phase == PhaseWelcome && time.Since(m.welcomeStart) >= WelcomeDuration {
			m.enterStartup()
		}
		m.feedStatus = m.svc.FeedStatus()
		return m, tickCmd()

	case StoreChangedMsg:
		m.refresh()
		m.lastUpdate = time.Now()

	case NavigationResultMsg:
		m.navigations++
		switch {
		case msg.Err == nil:
			m.activityFeed = addActivity(m.activityFeed, msg.Label)
		case apperror.IsCode(msg.Err, apperror.CodeNavigationSuperseded):
			// a newer request took over
		default:
			m.navErrors++
			m.addError(msg.Err.Error())
		}
		m.refresh()

	case L1DetailMsg:
		m.l1Details[msg.L1Number] = msg.Detail
		m.groups.SetDetail(msg.L1Number, msg.Detail)

	case ConnectionStatusMsg:
		m.status.Update(components.ConnectionStatus{
			Name:       msg.Name,
			Connected:  msg.Connected,
			Mode:       msg.Mode,
			Latency:    msg.Latency,
			LastBlock:  msg.LastBlock,
			LastUpdate: time.Now(),
		})
		m.lastUpdate = time.Now()

	case ErrorMsg:
		m.logs = addLog(m.logs, "error", msg.Error.Error())
		m.addError(msg.Error.Error())

	case LogMsg:
		m.logs = addLog(m.logs, msg.Level, msg.Message)

	case StartupMsg:
		if step, ok := m.startupSteps[msg.Step]; ok {
			step.Status = msg.Status
		}
		if msg.Status == "failed" && msg.Message != "" {
			m.addError(msg.Message)
		}
		allDone := true
		for _, step := range m.startupSteps {
			if step.Status != "connected" && step.Status != "done" {
				allDone = false
				break
			}
		}
		if allDone {
			m.startupComplete = true
		}
	}

	return m, nil
}

func (m *Model) enterStartup() {
	m.phase = PhaseStartup
	m.startupTime = time.Now()
	// Trigger callback directly (don't use Send() from within Update)
	if OnStartModules != nil {
		go OnStartModules()
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	store := m.svc.Store()

	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.ClearErrors):
		m.errors = make([]ErrorEntry, 0, 3)

	case key.Matches(msg, m.keys.Groups):
		m.showGroups = !m.showGroups
		if m.showGroups {
			return m, m.l1DetailsCmd()
		}

	case key.Matches(msg, m.keys.Goto):
		m.inputActive = true
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Live):
		live := !m.state.IsLiveMode
		store.SetLiveMode(live)
		if live {
			m.activityFeed = addActivity(m.activityFeed, "Live mode on")
		} else {
			m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("Paused at #%d", store.State().CurrentPosition))
		}
		m.refresh()

	case key.Matches(msg, m.keys.Reset):
		store.Reset()
		m.activityFeed = addActivity(m.activityFeed, "Window reset")
		m.refresh()

	case key.Matches(msg, m.keys.Clear):
		store.ClearBlocks()
		m.activityFeed = addActivity(m.activityFeed, "Blocks cleared")
		m.refresh()

	case key.Matches(msg, m.keys.LoadOlder):
		svc := m.svc
		return m, m.navigate(fmt.Sprintf("Loaded %d older blocks", loadOlderCount), func(ctx context.Context) error {
			return svc.LoadOlder(ctx, loadOlderCount)
		})

	case key.Matches(msg, m.keys.Newer):
		if m.showGroups {
			m.groups.ScrollUp()
			return m, nil
		}
		return m, m.navigate("Stepped to newer block", func(ctx context.Context) error {
			return store.NavigateRelative(ctx, domain.DirectionNext)
		})

	case key.Matches(msg, m.keys.Older):
		if m.showGroups {
			m.groups.ScrollDown()
			return m, nil
		}
		return m, m.navigate("Stepped to older block", func(ctx context.Context) error {
			return store.NavigateRelative(ctx, domain.DirectionPrev)
		})

	case key.Matches(msg, m.keys.Select):
		if !m.showGroups {
			return m, nil
		}
		sel, ok := m.groups.Selected()
		if !ok || !sel.Known {
			return m, nil
		}
		m.showGroups = false
		l1 := sel.L1Number
		return m, m.navigate(fmt.Sprintf("Opened L1 block #%d", l1), func(ctx context.Context) error {
			return m.svc.NavigateToL1(ctx, l1)
		})
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputActive = false
		m.input.Blur()
		return m, nil
	case "enter":
		m.inputActive = false
		m.input.Blur()
		raw := strings.TrimSpace(m.input.Value())
		target, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			m.addError(fmt.Sprintf("invalid block number %q", raw))
			return m, nil
		}
		store := m.svc.Store()
		return m, m.navigate(fmt.Sprintf("Jumped to block #%d", target), func(ctx context.Context) error {
			return store.NavigateToBlock(ctx, target)
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// navigate runs fn off the UI goroutine and reports back.
func (m Model) navigate(label string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, navigationTimeout)
		defer cancel()
		return NavigationResultMsg{Label: label, Err: fn(ctx)}
	}
}

// l1DetailsCmd fetches L1 details for the known groups not seen yet.
func (m Model) l1DetailsCmd() tea.Cmd {
	var cmds []tea.Cmd
	parent, svc := m.ctx, m.svc
	for _, g := range svc.L1Groups() {
		if !g.Known {
			continue
		}
		if _, ok := m.l1Details[g.L1Number]; ok {
			continue
		}
		n := g.L1Number
		cmds = append(cmds, func() tea.Msg {
			ctx, cancel := context.WithTimeout(parent, 10*time.Second)
			defer cancel()
			b, err := svc.L1Block(ctx, n)
			if err != nil {
				if apperror.IsCode(err, apperror.CodeConfigurationError) {
					return nil
				}
				return L1DetailMsg{L1Number: n, Detail: "details unavailable"}
			}
			return L1DetailMsg{L1Number: n, Detail: formatL1Detail(b)}
		})
	}
	return tea.Batch(cmds...)
}

// refresh pulls the current window from the store into the components.
func (m *Model) refresh() {
	store := m.svc.Store()
	st := store.State()
	visible := store.GetVisibleBlocks()

	if st.TipNumber > m.lastTip {
		if m.lastTip == 0 {
			m.blocksSeen++
		} else {
			m.blocksSeen += int64(st.TipNumber - m.lastTip)
		}
		if st.IsLiveMode {
			m.activityFeed = addActivity(m.activityFeed, fmt.Sprintf("Block #%d received", st.TipNumber))
		}
		m.lastTip = st.TipNumber
	}

	m.blocks.Update(blockRows(visible, st.CurrentPosition))
	if st.IsLiveMode {
		m.blocks.SetTitle("BLOCKS (live)")
	} else {
		m.blocks.SetTitle(fmt.Sprintf("BLOCKS around #%d", st.CurrentPosition))
	}

	groups := m.svc.L1Groups()
	m.groups.Update(groupRows(groups))
	for n, d := range m.l1Details {
		m.groups.SetDetail(n, d)
	}

	m.state = st
	m.feedStatus = m.svc.FeedStatus()
	m.stats.Update(components.Stats{
		BlocksSeen:       m.blocksSeen,
		StoredBlocks:     st.BlockCount,
		VisibleBlocks:    len(visible),
		L1Groups:         len(groups),
		Navigations:      m.navigations,
		NavigationErrors: m.navErrors,
	})
}

func (m *Model) addError(msg string) {
	m.errors = append(m.errors, ErrorEntry{Message: msg, Timestamp: time.Now()})
	if len(m.errors) > 3 {
		m.errors = m.errors[len(m.errors)-3:]
	}
}

// addLog adds a log message and returns the updated slice (keeps last 5).
func addLog(logs []string, level, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	logLine := fmt.Sprintf("[%s] %s: %s", timestamp, level, message)
	logs = append(logs, logLine)
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return logs
}

// addActivity adds an activity message and returns the updated slice (keeps last 6).
func addActivity(feed []string, message string) []string {
	timestamp := time.Now().Format("15:04:05")
	line := fmt.Sprintf("[%s] %s", timestamp, message)
	feed = append(feed, line)
	if len(feed) > 6 {
		feed = feed[len(feed)-6:]
	}
	return feed
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	switch m.phase {
	case PhaseWelcome:
		return m.renderWelcomeScreen()
	case PhaseStartup:
		if m.state.BlockCount == 0 && !m.startupComplete {
			return m.renderStartupScreen()
		}
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" ⛓  L2 Block Visualizer "))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n\n")

	var leftCol string
	if m.showGroups {
		leftCol = m.groups.View()
	} else {
		leftCol = m.blocks.View(m.tableRows())
	}

	var rightContent strings.Builder
	rightContent.WriteString(HeaderStyle.Render("ENDPOINTS"))
	rightContent.WriteString("\n")
	rightContent.WriteString(m.status.View(time.Now()))
	rightContent.WriteString("\n")
	rightContent.WriteString(m.stats.View())
	rightContent.WriteString("\n\n")
	rightContent.WriteString(m.renderActivityFeed())
	rightCol := rightContent.String()

	if m.width > 140 {
		left := BoxStyle.Width(m.width*3/5 - 2).Render(leftCol)
		right := BoxStyle.Width(m.width*2/5 - 2).Render(rightCol)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	} else {
		width := m.width - 4
		if width < 20 {
			width = 20
		}
		b.WriteString(BoxStyle.Width(width).Render(leftCol))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(rightCol))
	}
	b.WriteString("\n")

	if m.inputActive {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Persistent error panel (show last 3 errors)
	if len(m.errors) > 0 {
		errorStyle := lipgloss.NewStyle().Foreground(ColorDanger)
		errorHeader := lipgloss.NewStyle().Bold(true).Foreground(ColorDanger)

		b.WriteString(errorHeader.Render("ERRORS"))
		b.WriteString(MutedValue.Render(" (e: clear)"))
		b.WriteString("\n")
		for _, err := range m.errors {
			ago := time.Since(err.Timestamp).Round(time.Second)
			b.WriteString(errorStyle.Render(fmt.Sprintf("  • %s ", err.Message)))
			b.WriteString(MutedValue.Render(fmt.Sprintf("(%s ago)", ago)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

// tableRows is how many block rows fit on screen.
func (m Model) tableRows() int {
	if m.height <= 0 {
		return 0
	}
	rows := m.height - 16
	if rows < 5 {
		rows = 5
	}
	return rows
}

func (m Model) renderActivityFeed() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	blockStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("ACTIVITY"))
	sb.WriteString("\n\n")

	if len(m.activityFeed) == 0 {
		sb.WriteString(MutedValue.Render("  Waiting for blocks..."))
		return sb.String()
	}
	for _, activity := range m.activityFeed {
		if strings.Contains(activity, "Block #") {
			sb.WriteString(blockStyle.Render("  " + activity))
		} else {
			sb.WriteString(MutedValue.Render("  " + activity))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStatusBar() string {
	var parts []string

	parts = append(parts, modeBadge(m.state.IsLiveMode))

	parts = append(parts, fmt.Sprintf("Tip: #%d", m.state.TipNumber))
	if !m.state.IsLiveMode {
		parts = append(parts, fmt.Sprintf("Position: #%d", m.state.CurrentPosition))
	}

	parts = append(parts, feedStyle(m.feedStatus).Render("Feed: "+string(m.feedStatus)))

	if m.state.IsLoadingHistorical {
		parts = append(parts, loadingIndicator(time.Now()))
	}

	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		parts = append(parts, MutedValue.Render(fmt.Sprintf("Updated: %s ago", ago)))
	}

	return strings.Join(parts, "  │  ")
}

func (m Model) renderWelcomeScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	greenStyle := lipgloss.NewStyle().Foreground(ColorSecondary)

	elapsed := time.Since(m.welcomeStart)
	dots := strings.Repeat(".", int(elapsed.Milliseconds()/300)%4)

	var sb strings.Builder
	sb.WriteString("\n\n\n\n")

	logo := `
   ██████╗ ██╗      ██████╗  ██████╗██╗  ██╗██╗   ██╗██╗███████╗
   ██╔══██╗██║     ██╔═══██╗██╔════╝██║ ██╔╝██║   ██║██║╚══███╔╝
   ██████╔╝██║     ██║   ██║██║     █████╔╝ ██║   ██║██║  ███╔╝
   ██╔══██╗██║     ██║   ██║██║     ██╔═██╗ ╚██╗ ██╔╝██║ ███╔╝
   ██████╔╝███████╗╚██████╔╝╚██████╗██║  ██╗ ╚████╔╝ ██║███████╗
   ╚═════╝ ╚══════╝ ╚═════╝  ╚═════╝╚═╝  ╚═╝  ╚═══╝  ╚═╝╚══════╝
`
	sb.WriteString(titleStyle.Render(logo))
	sb.WriteString("\n")
	sb.WriteString(MutedValue.Render("              L 2   B L O C K   V I S U A L I Z E R"))
	sb.WriteString("\n\n\n")
	sb.WriteString(greenStyle.Render(fmt.Sprintf("                    Initializing%s", dots)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("              Press any key to skip, or wait..."))
	sb.WriteString("\n")

	return sb.String()
}

func (m Model) renderStartupScreen() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	successStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	connectingStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	failedStyle := lipgloss.NewStyle().Foreground(ColorDanger)

	var sb strings.Builder
	sb.WriteString("\n\n")
	sb.WriteString(titleStyle.Render("  ⛓  L2 Block Visualizer"))
	sb.WriteString("\n\n")
	sb.WriteString(headerStyle.Render("  Starting up..."))
	sb.WriteString("\n\n")

	for _, k := range startupOrder {
		step, ok := m.startupSteps[k]
		if !ok {
			continue
		}

		var icon, statusText string
		var style lipgloss.Style

		switch step.Status {
		case "connected", "done":
			icon, statusText, style = "✓", "Ready", successStyle
		case "connecting":
			spinners := []string{"◐", "◓", "◑", "◒"}
			idx := int(time.Since(m.startupTime).Milliseconds()/200) % len(spinners)
			icon, statusText, style = spinners[idx], "Connecting...", connectingStyle
		case "failed":
			icon, statusText, style = "✗", "Failed", failedStyle
		default:
			icon, statusText, style = "○", "Pending", MutedValue
		}

		sb.WriteString(fmt.Sprintf("  %s %s %s\n",
			style.Render(icon),
			MutedValue.Render(step.Name),
			style.Render(statusText),
		))
	}

	sb.WriteString("\n")
	elapsed := time.Since(m.startupTime).Round(time.Second)
	sb.WriteString(MutedValue.Render(fmt.Sprintf("  Elapsed: %s", elapsed)))
	sb.WriteString("\n\n")
	sb.WriteString(MutedValue.Render("  Waiting for the first L2 block..."))
	sb.WriteString("\n")

	return sb.String()
}

// Program holds the Bubble Tea program instance for external access.
var Program *tea.Program

// OnStartModules is called when the welcome screen completes and modules should start.
// This is set by main.go to signal when to begin loading modules.
var OnStartModules func()

// Send sends a message to the running program.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}
