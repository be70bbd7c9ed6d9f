package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keybindings for the TUI.
type KeyMap struct {
	Quit        key.Binding
	Newer       key.Binding
	Older       key.Binding
	Goto        key.Binding
	Live        key.Binding
	Reset       key.Binding
	LoadOlder   key.Binding
	Clear       key.Binding
	Groups      key.Binding
	Select      key.Binding
	ClearErrors key.Binding
	Help        key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Newer: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "newer"),
		),
		Older: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "older"),
		),
		Goto: key.NewBinding(
			key.WithKeys("g", "/"),
			key.WithHelp("g", "go to block"),
		),
		Live: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "live/pause"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		LoadOlder: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "load older"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "clear blocks"),
		),
		Groups: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "blocks/L1"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open L1 group"),
		),
		ClearErrors: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "clear errors"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Newer, k.Older, k.Goto, k.Live, k.Help}
}

// FullHelp returns keybindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Newer, k.Older, k.Goto, k.Live},
		{k.Groups, k.Select, k.LoadOlder},
		{k.Clear, k.Reset},
		{k.ClearErrors, k.Help, k.Quit},
	}
}
