package ui

import "time"

// Message types for TUI updates

// StoreChangedMsg is sent whenever the block window store changes.
type StoreChangedMsg struct{}

// ConnectionStatusMsg is sent when an endpoint's status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Mode      string
	Latency   time.Duration
	LastBlock uint64
}

// NavigationResultMsg carries the outcome of a navigation started from the UI.
type NavigationResultMsg struct {
	Label string
	Err   error
}

// L1DetailMsg carries L1 block details for the L1 groups panel.
type L1DetailMsg struct {
	L1Number uint64
	Detail   string
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // "config", "l2", "snapshot", "feed"
	Status  string // "connecting", "connected", "done", "failed"
	Message string // Optional message
}
