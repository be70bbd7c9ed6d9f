package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fd1az/blockviz/pkg/ui"
)

const statusInterval = 5 * time.Second

// runDashboard shows the TUI immediately and starts the modules once the
// welcome screen is done.
func runDashboard(ctx context.Context) error {
	rt, module, err := setup(ctx, setupOptions{tuiMode: true, telemetry: true, startFeed: true})
	if err != nil {
		return err
	}
	defer rt.close()

	startHealth(ctx, rt)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Channel to receive the welcome-complete signal
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	p := tea.NewProgram(ui.New(ctx, rt.svc), tea.WithAltScreen(), tea.WithContext(ctx))
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}
		errCh <- startForDashboard(ctx, rt, func() error {
			return rt.mono.StartModules(ctx, module)
		})
	}()

	// Run TUI (blocking)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	cancel()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// startForDashboard reports each startup step to the TUI, starts the
// modules and then keeps the endpoint status fresh until ctx ends.
func startForDashboard(ctx context.Context, rt *runtime, start func() error) error {
	ui.Send(ui.StartupMsg{Step: "config", Status: "done"})

	ui.Send(ui.StartupMsg{Step: "l2", Status: "connecting"})
	if !probeHead(ctx, rt) {
		ui.Send(ui.StartupMsg{Step: "l2", Status: "failed", Message: "L2 endpoint unreachable, retrying in the background"})
	} else {
		ui.Send(ui.StartupMsg{Step: "l2", Status: "connected"})
	}

	// Store listeners run on the mutating goroutine, which may be the UI
	// loop itself, so changes are coalesced and forwarded from here.
	changed := make(chan struct{}, 1)
	unsubscribe := rt.svc.Store().Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ui.Send(ui.StartupMsg{Step: "snapshot", Status: "connecting"})
	ui.Send(ui.StartupMsg{Step: "feed", Status: "connecting"})
	if err := start(); err != nil {
		ui.Send(ui.StartupMsg{Step: "feed", Status: "failed", Message: err.Error()})
		ui.Send(ui.ErrorMsg{Error: err})
		return fmt.Errorf("failed to start modules: %w", err)
	}
	ui.Send(ui.StartupMsg{Step: "snapshot", Status: "done"})
	ui.Send(ui.StartupMsg{Step: "feed", Status: "done"})
	ui.Send(ui.StoreChangedMsg{})
	ui.Send(ui.LogMsg{Level: "info", Message: "live feed started"})

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			ui.Send(ui.StoreChangedMsg{})
		case <-ticker.C:
			probeHead(ctx, rt)
		}
	}
}

// probeHead pings the L2 head and reports the endpoint status.
func probeHead(ctx context.Context, rt *runtime) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	head, err := rt.svc.Ping(pingCtx)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			rt.log.Warn(ctx, "l2 head probe failed", "error", err)
		}
		ui.Send(ui.ConnectionStatusMsg{Name: "L2 RPC", Connected: false, Mode: string(rt.svc.FeedStatus())})
		return false
	}
	ui.Send(ui.ConnectionStatusMsg{
		Name:      "L2 RPC",
		Connected: true,
		Mode:      string(rt.svc.FeedStatus()),
		Latency:   latency,
		LastBlock: head,
	})
	return true
}
