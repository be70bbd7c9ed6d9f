package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

// historicalBatchSize is the batch size used by LoadHistorical.
const historicalBatchSize = 10

// NavigateToBlock loads the window around target and pins the view to it.
//
// Numbers already stored are not fetched again. Missing numbers are fetched
// in batches; any fetch failure aborts the navigation with a
// *domain.NavigationError and leaves the state untouched. When a later
// navigation, SetLiveMode(true), Reset or Restore happens while this one is
// in flight, this one returns CodeNavigationSuperseded and writes nothing.
func (s *WindowStore) NavigateToBlock(ctx context.Context, target int64) (err error) {
	if target < 0 {
		return apperror.New(apperror.CodeInvalidArgument,
			apperror.WithContext(fmt.Sprintf("block number %d is negative", target)))
	}
	t := uint64(target)

	ctx, span := s.tracer.Start(ctx, "blocks.navigate", attribute.Int64("block.target", target))
	start := time.Now()
	defer func() {
		s.metrics.navigationDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		if err != nil {
			s.metrics.navigationErrors.Add(ctx, 1, metric.WithAttributes(
				attribute.String("code", string(apperror.GetCode(err)))))
			span.NoticeError(err)
		}
		span.End()
	}()

	s.mu.Lock()
	if s.tip > 0 && t > s.tip {
		tip := s.tip
		s.mu.Unlock()
		return apperror.New(apperror.CodeBlockOutOfRange,
			apperror.WithContext(fmt.Sprintf("block %d is in the future, tip is %d", t, tip)))
	}

	s.navSeq++
	seq := s.navSeq

	from, to := s.fetchWindowLocked(t)
	missing := s.missingLocked(from, to)
	if len(missing) == 0 {
		s.position = t
		s.live = false
		s.version++
		s.mu.Unlock()
		s.notify()
		return nil
	}

	gen := s.beginLoadLocked()
	s.mu.Unlock()
	s.notify()
	defer s.endLoad(gen)

	span.SetAttributes(attribute.Int("blocks.missing", len(missing)))
	s.log.Debug(ctx, "loading block window", "block", t, "from", from, "to", to, "missing", len(missing))

	fetched, err := s.fetchBatches(ctx, seq, t, missing)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeNavigationSuperseded) {
			return err
		}
		s.log.Warn(ctx, "navigation failed", "block", t, "error", err)
		return &domain.NavigationError{Target: t, Err: err}
	}

	s.mu.Lock()
	if seq != s.navSeq {
		s.mu.Unlock()
		return superseded(t)
	}
	s.mergeLocked(fetched, t)
	s.position = t
	s.live = false
	s.version++
	s.mu.Unlock()
	s.notify()
	return nil
}

// NavigateRelative steps through the number-descending order of the stored
// blocks. Next moves to the entry before the current one, prev to the entry
// after it. With no neighbour in memory, next targets one below the oldest
// stored block and prev one above the newest, and the window is loaded
// through NavigateToBlock.
func (s *WindowStore) NavigateRelative(ctx context.Context, dir domain.Direction) error {
	if dir != domain.DirectionNext && dir != domain.DirectionPrev {
		return apperror.New(apperror.CodeInvalidArgument, apperror.WithContext(fmt.Sprintf("direction %q", dir)))
	}

	s.mu.RLock()
	sorted := sortedDesc(s.blocks)
	position := s.position
	s.mu.RUnlock()

	idx := -1
	for i, e := range sorted {
		if e.number == position {
			idx = i
			break
		}
	}

	var target int64
	switch {
	case dir == domain.DirectionNext && idx > 0:
		target = int64(sorted[idx-1].number)
	case dir == domain.DirectionPrev && idx < len(sorted)-1:
		target = int64(sorted[idx+1].number)
	case dir == domain.DirectionNext:
		if len(sorted) > 0 {
			target = int64(sorted[len(sorted)-1].number) - 1
		} else {
			target = int64(position) - 1
		}
	default:
		if len(sorted) > 0 {
			target = int64(sorted[0].number) + 1
		} else {
			target = int64(position) + 1
		}
	}

	return s.NavigateToBlock(ctx, target)
}

// LoadHistorical fetches count blocks downward from `from` and merges each
// batch as it arrives. Position and mode are left alone. Like navigation it
// stops when superseded.
func (s *WindowStore) LoadHistorical(ctx context.Context, from uint64, count int) error {
	if count <= 0 {
		return nil
	}
	lowest := uint64(0)
	if uint64(count-1) < from {
		lowest = from - uint64(count-1)
	}

	s.mu.Lock()
	s.navSeq++
	seq := s.navSeq
	missing := s.missingLocked(lowest, from)
	if len(missing) == 0 {
		s.mu.Unlock()
		return nil
	}
	gen := s.beginLoadLocked()
	s.mu.Unlock()
	s.notify()
	defer s.endLoad(gen)

	for i := 0; i < len(missing); i += historicalBatchSize {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				return err
			}
		}
		batch := missing[i:min(i+historicalBatchSize, len(missing))]
		fetched, err := s.fetchBatch(ctx, batch)
		if err != nil {
			s.log.Warn(ctx, "historical load failed", "from", from, "error", err)
			return err
		}

		s.mu.Lock()
		if seq != s.navSeq {
			s.mu.Unlock()
			return superseded(from)
		}
		s.blocks = mergeEntries(s.blocks, fetched, s.cfg.MaxBlocks, nil)
		s.rebuildKeysLocked()
		s.version++
		s.mu.Unlock()
		s.notify()
	}
	return nil
}

// fetchWindowLocked returns [target-H, target+H], clamped at zero and, once
// the tip is known, at the tip.
func (s *WindowStore) fetchWindowLocked(target uint64) (uint64, uint64) {
	h := s.cfg.HalfWidth
	from := uint64(0)
	if target > h {
		from = target - h
	}
	to := target + h
	if to < target {
		to = math.MaxUint64
	}
	if s.tip > 0 && to > s.tip {
		to = s.tip
	}
	return from, to
}

// missingLocked lists the numbers in [from, to] with no stored block,
// ascending.
func (s *WindowStore) missingLocked(from, to uint64) []uint64 {
	have := make(map[uint64]struct{}, len(s.blocks))
	for _, e := range s.blocks {
		have[e.number] = struct{}{}
	}
	var missing []uint64
	for n := from; n <= to; n++ {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
		if n == math.MaxUint64 {
			break
		}
	}
	return missing
}

func (s *WindowStore) beginLoadLocked() uint64 {
	s.pending++
	s.version++
	return s.loadGen
}

func (s *WindowStore) endLoad(gen uint64) {
	s.mu.Lock()
	if gen != s.loadGen || s.pending == 0 {
		s.mu.Unlock()
		return
	}
	s.pending--
	s.version++
	s.mu.Unlock()
	s.notify()
}

// fetchBatches fetches missing in BatchSize groups, pausing BatchDelay
// between groups and checking for supersession before each new group.
func (s *WindowStore) fetchBatches(ctx context.Context, seq, target uint64, missing []uint64) ([]entry, error) {
	out := make([]entry, 0, len(missing))
	for i := 0; i < len(missing); i += s.cfg.BatchSize {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				return nil, err
			}
			if s.superseded(seq) {
				return nil, superseded(target)
			}
		}
		batch := missing[i:min(i+s.cfg.BatchSize, len(missing))]
		fetched, err := s.fetchBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, fetched...)
	}
	return out, nil
}

// fetchBatch fetches every number concurrently. The first failure cancels
// the rest.
func (s *WindowStore) fetchBatch(ctx context.Context, numbers []uint64) ([]entry, error) {
	results := make([]entry, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range numbers {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			b, err := s.source.BlockByNumber(gctx, n)
			if err != nil {
				return err
			}
			if b == nil {
				return apperror.NotFound(apperror.CodeBlockNotFound, fmt.Sprintf("block %d", n))
			}
			s.enrichBestEffort(gctx, b)
			stored, err := domain.ToStored(*b)
			if err != nil {
				return err
			}
			results[i] = entry{number: b.Number, block: stored}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *WindowStore) enrichBestEffort(ctx context.Context, b *domain.Block) {
	if s.origins == nil || b.L1Origin != nil {
		return
	}
	if s.cfg.EnrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EnrichTimeout)
		defer cancel()
	}
	origin, err := s.origins.OriginOf(ctx, b.Number)
	if err != nil {
		s.metrics.enrichmentFailures.Add(ctx, 1)
		s.log.Debug(ctx, "l1 origin lookup failed", "block", b.Number, "error", err)
		return
	}
	b.L1Origin = &origin
}

func (s *WindowStore) superseded(seq uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return seq != s.navSeq
}

// mergeLocked applies a navigation result. Stored blocks are dropped first
// when the target is not among them and all of them lie farther than
// DiscardThreshold from it.
func (s *WindowStore) mergeLocked(fetched []entry, target uint64) {
	base := s.blocks
	if s.shouldDiscardLocked(target) {
		base = nil
	}
	s.blocks = mergeEntries(base, fetched, s.cfg.MaxBlocks, &target)
	s.rebuildKeysLocked()
}

func (s *WindowStore) shouldDiscardLocked(target uint64) bool {
	if len(s.blocks) == 0 {
		return false
	}
	minDist := uint64(math.MaxUint64)
	for _, e := range s.blocks {
		if e.number == target {
			return false
		}
		minDist = min(minDist, absDiff(e.number, target))
	}
	return minDist > s.cfg.DiscardThreshold
}

func (s *WindowStore) rebuildKeysLocked() {
	s.keys = make(map[string]struct{}, len(s.blocks))
	for _, e := range s.blocks {
		s.keys[e.block.Key()] = struct{}{}
	}
}

// mergeEntries adds fetched entries whose number is not yet in base, sorts
// by number descending and truncates to maxBlocks. When target is set and
// would be truncated away, it replaces the last kept entry.
func mergeEntries(base, fetched []entry, maxBlocks int, target *uint64) []entry {
	have := make(map[uint64]struct{}, len(base))
	for _, e := range base {
		have[e.number] = struct{}{}
	}
	combined := make([]entry, 0, len(base)+len(fetched))
	for _, e := range fetched {
		if _, ok := have[e.number]; ok {
			continue
		}
		have[e.number] = struct{}{}
		combined = append(combined, e)
	}
	combined = sortedDesc(append(combined, base...))

	if len(combined) <= maxBlocks {
		return combined
	}
	kept := combined[:maxBlocks:maxBlocks]
	if target == nil {
		return kept
	}
	for _, e := range kept {
		if e.number == *target {
			return kept
		}
	}
	for _, e := range combined[maxBlocks:] {
		if e.number == *target {
			kept[maxBlocks-1] = e
			break
		}
	}
	return kept
}

func superseded(target uint64) error {
	return apperror.New(apperror.CodeNavigationSuperseded,
		apperror.WithContext(fmt.Sprintf("navigation to block %d", target)))
}
