package app

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/logger"
)

// Persister saves window snapshots whenever the store has changed.
type Persister struct {
	store    *WindowStore
	repo     SnapshotRepository
	interval time.Duration
	log      logger.LoggerInterface

	mu        sync.Mutex
	lastSaved uint64
}

// NewPersister creates a persister that checks for changes every interval.
func NewPersister(store *WindowStore, repo SnapshotRepository, interval time.Duration, log logger.LoggerInterface) *Persister {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Persister{store: store, repo: repo, interval: interval, log: log}
}

// Restore loads the last snapshot into the store. A corrupt or unsupported
// snapshot is logged and skipped so the session starts empty.
func (p *Persister) Restore(ctx context.Context) error {
	snap, err := p.repo.Load(ctx)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeSnapshotCorrupt) || apperror.IsCode(err, apperror.CodeSnapshotVersionUnsupported) {
			p.log.Warn(ctx, "ignoring persisted snapshot", "error", err)
			return nil
		}
		return err
	}
	if snap == nil {
		return nil
	}

	p.store.Restore(ctx, *snap)

	p.mu.Lock()
	p.lastSaved = p.store.Version()
	p.mu.Unlock()

	p.log.Info(ctx, "restored window snapshot",
		"blocks", len(snap.Blocks), "tip", snap.TipNumber, "position", snap.CurrentPosition, "live", snap.IsLiveMode)
	return nil
}

// Run saves on every tick with pending changes, and once more when ctx is
// done.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.Flush(flushCtx); err != nil {
				p.log.Error(flushCtx, "final snapshot save failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.log.Warn(ctx, "snapshot save failed", "error", err)
			}
		}
	}
}

// Flush saves the snapshot if the store changed since the last save.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	version := p.store.Version()
	if version == p.lastSaved {
		return nil
	}
	if err := p.repo.Save(ctx, p.store.Snapshot()); err != nil {
		return err
	}
	p.lastSaved = version
	return nil
}
