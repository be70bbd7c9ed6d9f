package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any)       {}
func (nopLogger) Info(context.Context, string, ...any)        {}
func (nopLogger) Warn(context.Context, string, ...any)        {}
func (nopLogger) Error(context.Context, string, ...any)       {}
func (nopLogger) Debugc(context.Context, int, string, ...any) {}
func (nopLogger) Infoc(context.Context, int, string, ...any)  {}
func (nopLogger) Warnc(context.Context, int, string, ...any)  {}
func (nopLogger) Errorc(context.Context, int, string, ...any) {}

func mkBlock(n uint64) *domain.Block {
	return &domain.Block{
		Number:        n,
		Hash:          common.BigToHash(new(big.Int).SetUint64(n + 1_000_000)),
		ParentHash:    common.BigToHash(new(big.Int).SetUint64(n + 999_999)),
		TimestampMs:   1_700_000_000_000 + n*2000,
		GasUsed:       big.NewInt(21_000),
		GasLimit:      big.NewInt(30_000_000),
		BaseFeePerGas: big.NewInt(1_000_000),
		TxCount:       n % 7,
	}
}

// fakeSource serves mkBlock(n) for every number unless told otherwise.
type fakeSource struct {
	mu      sync.Mutex
	head    uint64
	headErr error
	fail    map[uint64]error
	gates   map[uint64]chan struct{}
	calls   []uint64

	headCalls atomic.Int64
}

func newFakeSource(head uint64) *fakeSource {
	return &fakeSource{head: head, fail: map[uint64]error{}, gates: map[uint64]chan struct{}{}}
}

func (f *fakeSource) HeadNumber(ctx context.Context) (uint64, error) {
	f.headCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		err := f.headErr
		f.headErr = nil
		return 0, err
	}
	return f.head, nil
}

func (f *fakeSource) BlockByNumber(ctx context.Context, n uint64) (*domain.Block, error) {
	f.mu.Lock()
	f.calls = append(f.calls, n)
	err := f.fail[n]
	gate := f.gates[n]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return mkBlock(n), nil
}

func (f *fakeSource) setHead(n uint64) {
	f.mu.Lock()
	f.head = n
	f.mu.Unlock()
}

func (f *fakeSource) failOn(n uint64, err error) {
	f.mu.Lock()
	f.fail[n] = err
	f.mu.Unlock()
}

func (f *fakeSource) gate(n uint64) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[n] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeOrigins maps every L2 block to L1 block n/6.
type fakeOrigins struct {
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (f *fakeOrigins) OriginOf(ctx context.Context, l2 uint64) (domain.L1Origin, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.L1Origin{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.L1Origin{}, f.err
	}
	return domain.L1Origin{
		Number:      l2 / 6,
		Hash:        common.BigToHash(new(big.Int).SetUint64(l2 / 6)),
		TimestampMs: 1_600_000_000_000 + (l2/6)*12000,
	}, nil
}

type fakeSubscriber struct {
	mu           sync.Mutex
	err          error
	onBlock      func(*domain.Block)
	onError      func(error)
	unsubscribed atomic.Int64
}

func (f *fakeSubscriber) SubscribeNewBlocks(ctx context.Context, onBlock func(*domain.Block), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.onBlock, f.onError = onBlock, onError
	return func() { f.unsubscribed.Add(1) }, nil
}

func (f *fakeSubscriber) push(b *domain.Block) {
	f.mu.Lock()
	fn := f.onBlock
	f.mu.Unlock()
	fn(b)
}

func (f *fakeSubscriber) breakWith(err error) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	fn(err)
}

type fakeRepo struct {
	mu      sync.Mutex
	snap    *domain.Snapshot
	loadErr error
	saves   int
}

func (r *fakeRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap, r.loadErr
}

func (r *fakeRepo) Save(ctx context.Context, s domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = &s
	r.saves++
	return nil
}

func (r *fakeRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestStore(src BlockSource, mutate func(*WindowConfig), opts ...StoreOption) *WindowStore {
	cfg := DefaultWindowConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	opts = append([]StoreOption{WithSleep(noSleep)}, opts...)
	s, err := NewWindowStore(cfg, src, nopLogger{}, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func numbers(blocks []domain.StoredBlock) []uint64 {
	out := make([]uint64, len(blocks))
	for i, b := range blocks {
		n, err := b.BlockNumber()
		if err != nil {
			panic(fmt.Sprintf("bad number %q", b.Number))
		}
		out[i] = n
	}
	return out
}

func seq(from, to uint64) []uint64 {
	var out []uint64
	if from >= to {
		for n := from; ; n-- {
			out = append(out, n)
			if n == to {
				break
			}
		}
		return out
	}
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

var errUpstream = apperror.New(apperror.CodeUpstreamTransient)
