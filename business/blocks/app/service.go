package app

import (
	"context"
	"fmt"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

// BlockService is the entry point used by the presentation layers.
type BlockService struct {
	store  *WindowStore
	feed   *LiveFeed
	source BlockSource
	l1     L1BlockReader // optional
}

// NewBlockService creates a new BlockService. l1 may be nil.
func NewBlockService(store *WindowStore, feed *LiveFeed, source BlockSource, l1 L1BlockReader) *BlockService {
	return &BlockService{store: store, feed: feed, source: source, l1: l1}
}

// Store returns the block window store.
func (s *BlockService) Store() *WindowStore {
	return s.store
}

// FeedStatus returns the live feed status.
func (s *BlockService) FeedStatus() FeedStatus {
	return s.feed.Status()
}

// Ping returns the current L2 head number.
func (s *BlockService) Ping(ctx context.Context) (uint64, error) {
	return s.source.HeadNumber(ctx)
}

// Block fetches a single block straight from the source.
func (s *BlockService) Block(ctx context.Context, number uint64) (*domain.Block, error) {
	return s.source.BlockByNumber(ctx, number)
}

// L1Block returns an L1 block summary.
func (s *BlockService) L1Block(ctx context.Context, number uint64) (domain.L1Block, error) {
	if s.l1 == nil {
		return domain.L1Block{}, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("no L1 endpoint configured"))
	}
	return s.l1.L1Block(ctx, number)
}

// LoadOlder loads count blocks below the oldest stored one, or below the
// position when nothing is stored.
func (s *BlockService) LoadOlder(ctx context.Context, count int) error {
	from, ok := s.store.OldestNumber()
	if !ok {
		from = s.store.State().CurrentPosition + 1
	}
	if from == 0 {
		return apperror.New(apperror.CodeBlockOutOfRange, apperror.WithContext("already at genesis"))
	}
	return s.store.LoadHistorical(ctx, from-1, count)
}

// L1Groups groups the visible blocks by L1 origin.
func (s *BlockService) L1Groups() []domain.L1Group {
	return GroupByL1(s.store.GetVisibleBlocks())
}

// NavigateToL1 navigates to the middle L2 block of the visible group for
// l1Number.
func (s *BlockService) NavigateToL1(ctx context.Context, l1Number uint64) error {
	for _, g := range s.L1Groups() {
		if !g.Known || g.L1Number != l1Number {
			continue
		}
		target, ok := MiddleBlock(g)
		if !ok {
			break
		}
		return s.store.NavigateToBlock(ctx, int64(target))
	}
	return apperror.NotFound(apperror.CodeNotFound, fmt.Sprintf("no visible L2 blocks for L1 block %d", l1Number))
}
