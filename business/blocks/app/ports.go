// Package app contains application services and port definitions for the blocks context.
package app

import (
	"context"

	"github.com/fd1az/blockviz/business/blocks/domain"
)

// BlockSource answers head and point queries against the L2 chain.
type BlockSource interface {
	// HeadNumber returns the current chain head number.
	HeadNumber(ctx context.Context) (uint64, error)

	// BlockByNumber fetches one block. Failures carry CodeBlockNotFound,
	// CodeRateLimitExceeded or CodeUpstreamTransient.
	BlockByNumber(ctx context.Context, number uint64) (*domain.Block, error)
}

// Subscriber is the optional push capability of a block source.
type Subscriber interface {
	// SubscribeNewBlocks delivers new blocks to onBlock until the returned
	// unsubscribe func is called. onError is called at most once when the
	// subscription breaks. unsubscribe must not block.
	SubscribeNewBlocks(ctx context.Context, onBlock func(*domain.Block), onError func(error)) (unsubscribe func(), err error)
}

// OriginResolver resolves the L1 origin of an L2 block.
type OriginResolver interface {
	OriginOf(ctx context.Context, l2Number uint64) (domain.L1Origin, error)
}

// L1BlockReader reads L1 block summaries.
type L1BlockReader interface {
	L1Block(ctx context.Context, number uint64) (domain.L1Block, error)
}

// SnapshotRepository persists the window snapshot.
type SnapshotRepository interface {
	// Load returns nil, nil when nothing has been saved yet.
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snapshot domain.Snapshot) error
}
