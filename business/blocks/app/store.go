package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apm"
	"github.com/fd1az/blockviz/internal/logger"
	"github.com/fd1az/blockviz/internal/ratelimit"
)

// WindowConfig tunes the block window.
type WindowConfig struct {
	MaxBlocks        int
	WindowSize       int
	HalfWidth        uint64        // fetch window half-width around a navigation target
	DiscardThreshold uint64        // distance beyond which stored blocks are dropped on navigation
	BatchSize        int           // point fetches issued together
	BatchDelay       time.Duration // pause between batches
	EnrichTimeout    time.Duration // per-block L1 origin lookup during navigation
}

// DefaultWindowConfig returns the standard window settings.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxBlocks:        200,
		WindowSize:       50,
		HalfWidth:        10,
		DiscardThreshold: 50,
		BatchSize:        10,
		BatchDelay:       200 * time.Millisecond,
		EnrichTimeout:    5 * time.Second,
	}
}

// WindowState is a read-only view of the store's scalar state.
type WindowState struct {
	TipNumber           uint64
	CurrentPosition     uint64
	IsLiveMode          bool
	IsLoadingHistorical bool
	BlockCount          int
	Version             uint64
}

// StoreOption configures optional collaborators of a WindowStore.
type StoreOption func(*WindowStore)

// WithOriginResolver annotates navigation fetches with their L1 origin.
func WithOriginResolver(r OriginResolver) StoreOption {
	return func(s *WindowStore) { s.origins = r }
}

// WithLimiter throttles point fetches issued by navigation.
func WithLimiter(l *ratelimit.Limiter) StoreOption {
	return func(s *WindowStore) { s.limiter = l }
}

// WithSleep replaces the inter-batch delay, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) StoreOption {
	return func(s *WindowStore) { s.sleep = fn }
}

type entry struct {
	number uint64
	block  domain.StoredBlock
}

// WindowStore is the single source of truth for which blocks are known,
// which are visible, and where the viewer is. All methods are safe for
// concurrent use.
type WindowStore struct {
	cfg     WindowConfig
	source  BlockSource
	origins OriginResolver
	limiter *ratelimit.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	log     logger.LoggerInterface
	tracer  apm.Tracer
	metrics *appMetrics

	mu       sync.RWMutex
	blocks   []entry // storage order, newest ingested first
	keys     map[string]struct{}
	tip      uint64
	position uint64
	live     bool
	pending  int    // navigations with a fetch in flight
	loadGen  uint64 // bumped by Reset/Restore to orphan in-flight loads
	navSeq   uint64
	version  uint64

	listenersMu sync.Mutex
	listeners   map[int]func()
	nextID      int
}

// NewWindowStore creates an empty store in live mode.
func NewWindowStore(cfg WindowConfig, source BlockSource, log logger.LoggerInterface, opts ...StoreOption) (*WindowStore, error) {
	if cfg.MaxBlocks <= 0 || cfg.WindowSize <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid window config: max=%d window=%d batch=%d", cfg.MaxBlocks, cfg.WindowSize, cfg.BatchSize)
	}
	if cfg.DiscardThreshold < cfg.HalfWidth {
		return nil, fmt.Errorf("invalid window config: discard threshold %d below half width %d", cfg.DiscardThreshold, cfg.HalfWidth)
	}

	m, err := newAppMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	s := &WindowStore{
		cfg:       cfg,
		source:    source,
		sleep:     sleepContext,
		log:       log,
		tracer:    apm.NewTracer(tracerName),
		metrics:   m,
		keys:      make(map[string]struct{}),
		live:      true,
		listeners: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subscribe registers fn to be called after every state change. fn runs on
// the mutating goroutine and must not block. The returned func removes it.
func (s *WindowStore) Subscribe(fn func()) (unsubscribe func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *WindowStore) notify() {
	s.listenersMu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Ingest adds a newly observed block. It reports false without error when
// the block is already stored. In live mode the position follows the block;
// in historical mode only the collection changes.
func (s *WindowStore) Ingest(ctx context.Context, b *domain.Block) (bool, error) {
	if b == nil {
		return false, nil
	}
	stored, err := domain.ToStored(*b)
	if err != nil {
		return false, err
	}
	key := b.Key()

	s.mu.Lock()
	if s.containsKeyLocked(key) {
		s.mu.Unlock()
		s.metrics.duplicateBlocks.Add(ctx, 1)
		return false, nil
	}

	s.blocks = append([]entry{{number: b.Number, block: stored}}, s.blocks...)
	s.keys[key] = struct{}{}
	s.evictLocked()
	if s.live {
		s.position = b.Number
	}
	s.version++
	s.mu.Unlock()

	s.metrics.blocksIngested.Add(ctx, 1)
	s.notify()
	return true, nil
}

func (s *WindowStore) containsKeyLocked(key string) bool {
	if len(s.blocks) > 0 && s.blocks[0].block.Key() == key {
		return true
	}
	_, ok := s.keys[key]
	return ok
}

// evictLocked drops the numerically oldest entries until the cap holds.
// Index 0, the entry just ingested, is never a candidate. In historical mode
// the entries GetVisibleBlocks would show around the position are kept too.
func (s *WindowStore) evictLocked() {
	if len(s.blocks) <= s.cfg.MaxBlocks {
		return
	}
	var pinned map[uint64]struct{}
	if !s.live {
		sorted := sortedDesc(s.blocks)
		start, end := s.historicalRangeLocked(sorted)
		pinned = make(map[uint64]struct{}, end-start)
		for _, e := range sorted[start:end] {
			pinned[e.number] = struct{}{}
		}
	}

	for len(s.blocks) > s.cfg.MaxBlocks {
		victim := -1
		for i := 1; i < len(s.blocks); i++ {
			if _, ok := pinned[s.blocks[i].number]; ok {
				continue
			}
			if victim < 0 || s.blocks[i].number <= s.blocks[victim].number {
				victim = i
			}
		}
		if victim < 0 {
			// Window as large as the cap: fall back to the plain oldest.
			pinned = nil
			continue
		}
		delete(s.keys, s.blocks[victim].block.Key())
		s.blocks = append(s.blocks[:victim], s.blocks[victim+1:]...)
	}
}

// SetTip advances the known chain head. Lower values are ignored.
func (s *WindowStore) SetTip(n uint64) {
	s.mu.Lock()
	if n <= s.tip {
		s.mu.Unlock()
		return
	}
	s.tip = n
	s.version++
	s.mu.Unlock()
	s.notify()
}

// SetLiveMode switches modes. Entering live mode moves the position to the
// tip and supersedes any navigation still in flight.
func (s *WindowStore) SetLiveMode(live bool) {
	s.mu.Lock()
	s.live = live
	if live {
		s.position = s.tip
		s.navSeq++
	}
	s.version++
	s.mu.Unlock()
	s.notify()
}

// SetCurrentPosition moves the position without changing mode.
func (s *WindowStore) SetCurrentPosition(n uint64) {
	s.mu.Lock()
	s.position = n
	s.version++
	s.mu.Unlock()
	s.notify()
}

// ClearBlocks drops every stored block; tip, position and mode are kept.
// A navigation or historical load still in flight is superseded.
func (s *WindowStore) ClearBlocks() {
	s.mu.Lock()
	s.blocks = nil
	s.keys = make(map[string]struct{})
	s.navSeq++
	s.version++
	s.mu.Unlock()
	s.notify()
}

// Reset returns the store to its initial empty live state and orphans any
// load in flight.
func (s *WindowStore) Reset() {
	s.mu.Lock()
	s.blocks = nil
	s.keys = make(map[string]struct{})
	s.tip = 0
	s.position = 0
	s.live = true
	s.pending = 0
	s.loadGen++
	s.navSeq++
	s.version++
	s.mu.Unlock()
	s.notify()
}

// AttachL1Origin annotates the stored block with the given key. It reports
// whether the block was found.
func (s *WindowStore) AttachL1Origin(key string, origin domain.L1Origin) bool {
	stored := domain.StoreL1Origin(&origin)

	s.mu.Lock()
	found := false
	for i := range s.blocks {
		if s.blocks[i].block.Key() == key {
			s.blocks[i].block.L1Origin = stored
			found = true
			break
		}
	}
	if found {
		s.version++
	}
	s.mu.Unlock()

	if found {
		s.notify()
	}
	return found
}

// State returns the scalar state.
func (s *WindowStore) State() WindowState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return WindowState{
		TipNumber:           s.tip,
		CurrentPosition:     s.position,
		IsLiveMode:          s.live,
		IsLoadingHistorical: s.pending > 0,
		BlockCount:          len(s.blocks),
		Version:             s.version,
	}
}

// OldestNumber returns the lowest stored block number.
func (s *WindowStore) OldestNumber() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return 0, false
	}
	lowest := s.blocks[0].number
	for _, e := range s.blocks[1:] {
		lowest = min(lowest, e.number)
	}
	return lowest, true
}

// Version increments on every state change.
func (s *WindowStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// GetVisibleBlocks returns the blocks to display. Live mode yields the
// newest WindowSize entries in storage order. Historical mode yields a
// WindowSize slice of the number-descending order centered on the position,
// or on the closest stored number when the position itself is missing.
func (s *WindowStore) GetVisibleBlocks() []domain.StoredBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws := s.cfg.WindowSize
	if len(s.blocks) == 0 {
		return []domain.StoredBlock{}
	}

	if s.live {
		n := min(ws, len(s.blocks))
		out := make([]domain.StoredBlock, n)
		for i := 0; i < n; i++ {
			out[i] = s.blocks[i].block
		}
		return out
	}

	sorted := sortedDesc(s.blocks)
	start, end := s.historicalRangeLocked(sorted)

	out := make([]domain.StoredBlock, 0, end-start)
	for _, e := range sorted[start:end] {
		out = append(out, e.block)
	}
	return out
}

// historicalRangeLocked returns the [start, end) slice of sorted shown in
// historical mode: WindowSize entries centered on the position, or on the
// closest stored number when the position itself is missing.
func (s *WindowStore) historicalRangeLocked(sorted []entry) (int, int) {
	ws := s.cfg.WindowSize
	idx := closestIndex(sorted, s.position)
	start := max(0, idx-ws/2)
	end := min(len(sorted), start+ws)
	return max(0, end-ws), end
}

// Snapshot captures the persisted slice of the state.
func (s *WindowStore) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(len(s.blocks), domain.MaxSnapshotBlocks)
	blocks := make([]domain.StoredBlock, n)
	for i := 0; i < n; i++ {
		blocks[i] = s.blocks[i].block
	}
	return domain.Snapshot{
		Version:         domain.SnapshotVersion,
		Blocks:          blocks,
		TipNumber:       s.tip,
		CurrentPosition: s.position,
		IsLiveMode:      s.live,
	}
}

// Restore replaces the state with a persisted snapshot. Blocks that fail to
// parse are skipped; duplicate keys keep their first occurrence.
func (s *WindowStore) Restore(ctx context.Context, snap domain.Snapshot) {
	blocks := make([]entry, 0, len(snap.Blocks))
	keys := make(map[string]struct{}, len(snap.Blocks))
	for _, b := range snap.Blocks {
		n, err := b.BlockNumber()
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable snapshot block", "number", b.Number, "error", err)
			continue
		}
		key := b.Key()
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		blocks = append(blocks, entry{number: n, block: b})
		if len(blocks) == s.cfg.MaxBlocks {
			break
		}
	}

	s.mu.Lock()
	s.blocks = blocks
	s.keys = keys
	s.tip = snap.TipNumber
	s.position = snap.CurrentPosition
	s.live = snap.IsLiveMode
	s.pending = 0
	s.loadGen++
	s.navSeq++
	s.version++
	s.mu.Unlock()
	s.notify()
}

// sortedDesc returns a copy ordered by number, highest first. Equal numbers
// keep storage order.
func sortedDesc(blocks []entry) []entry {
	out := make([]entry, len(blocks))
	copy(out, blocks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].number > out[j].number })
	return out
}

// closestIndex returns the index of target in sorted, or of the entry with
// the smallest distance to it; the first such entry wins ties.
func closestIndex(sorted []entry, target uint64) int {
	best := -1
	var bestDiff uint64
	for i, e := range sorted {
		d := absDiff(e.number, target)
		if d == 0 {
			return i
		}
		if best == -1 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
