package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

func ingestAll(t *testing.T, s *WindowStore, nums ...uint64) {
	t.Helper()
	for _, n := range nums {
		s.SetTip(n)
		_, err := s.Ingest(context.Background(), mkBlock(n))
		require.NoError(t, err)
	}
}

func TestIngest_LiveScenario(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)

	ingestAll(t, s, 100, 101, 102)

	assert.Equal(t, []uint64{102, 101, 100}, numbers(s.GetVisibleBlocks()))
	st := s.State()
	assert.Equal(t, uint64(102), st.CurrentPosition)
	assert.Equal(t, uint64(102), st.TipNumber)
	assert.True(t, st.IsLiveMode)
	assert.False(t, st.IsLoadingHistorical)
}

func TestIngest_DuplicateIsNoop(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ctx := context.Background()

	ok, err := s.Ingest(ctx, mkBlock(7))
	require.NoError(t, err)
	require.True(t, ok)
	v := s.Version()

	ok, err = s.Ingest(ctx, mkBlock(7))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, v, s.Version())

	ingestAll(t, s, 8)
	ok, err = s.Ingest(ctx, mkBlock(7))
	require.NoError(t, err)
	assert.False(t, ok, "membership check covers more than the head")
	assert.Equal(t, []uint64{8, 7}, numbers(s.GetVisibleBlocks()))
}

func TestIngest_NilAndInvalid(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)

	ok, err := s.Ingest(context.Background(), nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	bad := mkBlock(3)
	bad.GasUsed.SetInt64(-1)
	_, err = s.Ingest(context.Background(), bad)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidBlock))
	assert.Zero(t, s.State().BlockCount)
}

func TestIngest_BoundAndLiveInvariant(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ctx := context.Background()

	for n := uint64(1); n <= 450; n++ {
		// out-of-order redelivery every few blocks
		num := n
		if n%5 == 0 {
			num = n - 3
		}
		_, err := s.Ingest(ctx, mkBlock(num))
		require.NoError(t, err)

		st := s.State()
		require.LessOrEqual(t, st.BlockCount, 200)
		snap := s.Snapshot()
		head, err := snap.Blocks[0].BlockNumber()
		require.NoError(t, err)
		require.Equal(t, head, st.CurrentPosition)
	}
}

func TestIngest_EvictsOldestButNeverTheNewEntry(t *testing.T) {
	s := newTestStore(newFakeSource(0), func(c *WindowConfig) { c.MaxBlocks = 3; c.WindowSize = 3 })

	ingestAll(t, s, 10, 11, 12)
	ingestAll(t, s, 5) // late, lowest number

	assert.Equal(t, []uint64{5, 12, 11}, numbers(s.GetVisibleBlocks()))
	assert.Equal(t, uint64(5), s.State().CurrentPosition)

	ingestAll(t, s, 13)
	assert.Equal(t, []uint64{13, 12, 11}, numbers(s.GetVisibleBlocks()))
}

func TestIngest_HistoricalWindowSurvivesEviction(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(1000)
	require.NoError(t, s.NavigateToBlock(context.Background(), 50))

	ingestAll(t, s, seq(1001, 1200)...)

	st := s.State()
	assert.False(t, st.IsLiveMode)
	assert.Equal(t, uint64(50), st.CurrentPosition)
	assert.Equal(t, 200, st.BlockCount)

	visible := numbers(s.GetVisibleBlocks())
	assert.Len(t, visible, 50)
	for _, n := range seq(60, 40) {
		assert.Contains(t, visible, n)
	}
	assert.Contains(t, numbers(s.Snapshot().Blocks), uint64(1200))
}

func TestIngest_ReorgSiblingsKeptDistinct(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ctx := context.Background()

	a := mkBlock(50)
	b := mkBlock(50)
	b.Hash = common.HexToHash("0xdeadbeef")

	_, err := s.Ingest(ctx, a)
	require.NoError(t, err)
	ok, err := s.Ingest(ctx, b)
	require.NoError(t, err)
	assert.True(t, ok)

	visible := s.GetVisibleBlocks()
	require.Len(t, visible, 2)
	assert.NotEqual(t, visible[0].Hash, visible[1].Hash)
}

func TestIngest_HistoricalKeepsPosition(t *testing.T) {
	src := newFakeSource(102)
	s := newTestStore(src, nil)
	ingestAll(t, s, 100, 101, 102)

	require.NoError(t, s.NavigateToBlock(context.Background(), 50))
	st := s.State()
	assert.False(t, st.IsLiveMode)
	assert.Equal(t, uint64(50), st.CurrentPosition)

	ingestAll(t, s, 103)

	st = s.State()
	assert.Equal(t, uint64(50), st.CurrentPosition)
	assert.False(t, st.IsLiveMode)
	assert.Equal(t, uint64(103), st.TipNumber)
	assert.Contains(t, numbers(s.Snapshot().Blocks), uint64(103))
}

func TestSetTip_NeverRegresses(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	s.SetTip(10)
	s.SetTip(4)
	assert.Equal(t, uint64(10), s.State().TipNumber)
}

func TestSetLiveMode(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ingestAll(t, s, 1, 2, 3)

	s.SetLiveMode(false)
	s.SetCurrentPosition(2)
	assert.Equal(t, uint64(2), s.State().CurrentPosition)

	s.SetTip(9)
	s.SetLiveMode(true)
	st := s.State()
	assert.True(t, st.IsLiveMode)
	assert.Equal(t, uint64(9), st.CurrentPosition)

	s.SetLiveMode(true)
	assert.Equal(t, uint64(9), s.State().CurrentPosition)
}

func TestGetVisibleBlocks_Historical(t *testing.T) {
	s := newTestStore(newFakeSource(0), func(c *WindowConfig) { c.WindowSize = 10 })
	assert.Empty(t, s.GetVisibleBlocks())

	// storage order scrambled on purpose
	ingestAll(t, s, seq(51, 100)...)
	ingestAll(t, s, seq(1, 50)...)
	s.SetLiveMode(false)

	tests := map[string]struct {
		position uint64
		want     []uint64
	}{
		"centered":        {position: 50, want: seq(55, 46)},
		"clamped at top":  {position: 99, want: seq(100, 91)},
		"clamped at base": {position: 2, want: seq(10, 1)},
		"closest number":  {position: 500, want: seq(100, 91)},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s.SetCurrentPosition(tc.position)
			assert.Equal(t, tc.want, numbers(s.GetVisibleBlocks()))
		})
	}
}

func TestGetVisibleBlocks_ClosestFallbackWithGap(t *testing.T) {
	s := newTestStore(newFakeSource(0), func(c *WindowConfig) { c.WindowSize = 3 })
	ingestAll(t, s, 10, 11, 12, 20, 21, 22)
	s.SetLiveMode(false)

	s.SetCurrentPosition(17) // 20 is closer than 12
	assert.Equal(t, []uint64{21, 20, 12}, numbers(s.GetVisibleBlocks()))

	s.SetCurrentPosition(16) // tie between 12 and 20: first in descending order wins
	assert.Equal(t, []uint64{21, 20, 12}, numbers(s.GetVisibleBlocks()))
}

func TestGetVisibleBlocks_FewerThanWindow(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ingestAll(t, s, 3, 1, 2)
	s.SetLiveMode(false)
	s.SetCurrentPosition(1)
	assert.Equal(t, []uint64{3, 2, 1}, numbers(s.GetVisibleBlocks()))
}

func TestReset(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ingestAll(t, s, 1, 2)
	s.SetLiveMode(false)

	s.Reset()

	st := s.State()
	assert.Equal(t, WindowState{IsLiveMode: true, Version: st.Version}, st)
	assert.Empty(t, s.GetVisibleBlocks())
}

func TestClearBlocks(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ingestAll(t, s, 1, 2)
	s.SetLiveMode(false)

	s.ClearBlocks()

	st := s.State()
	assert.Zero(t, st.BlockCount)
	assert.Equal(t, uint64(2), st.TipNumber)
	assert.Equal(t, uint64(2), st.CurrentPosition)
	assert.False(t, st.IsLiveMode)

	ok, err := s.Ingest(context.Background(), mkBlock(2))
	require.NoError(t, err)
	assert.True(t, ok, "cleared keys accept the block again")
}

func TestAttachL1Origin(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	b := mkBlock(12)
	ingestAll(t, s, 12)

	origin := domain.L1Origin{Number: 2, Hash: common.HexToHash("0x02"), TimestampMs: 99}
	assert.True(t, s.AttachL1Origin(b.Key(), origin))
	assert.False(t, s.AttachL1Origin("0xmissing", origin))

	got := s.GetVisibleBlocks()[0]
	require.NotNil(t, got.L1Origin)
	assert.Equal(t, "2", got.L1Origin.Number)
}

func TestSnapshotRestore(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	ingestAll(t, s, seq(1, 250)...)
	s.SetLiveMode(false)
	s.SetCurrentPosition(240)

	snap := s.Snapshot()
	assert.Equal(t, domain.SnapshotVersion, snap.Version)
	assert.Len(t, snap.Blocks, domain.MaxSnapshotBlocks)
	assert.Equal(t, uint64(250), snap.TipNumber)

	restored := newTestStore(newFakeSource(0), nil)
	restored.Restore(context.Background(), snap)

	st := restored.State()
	assert.Equal(t, uint64(250), st.TipNumber)
	assert.Equal(t, uint64(240), st.CurrentPosition)
	assert.False(t, st.IsLiveMode)
	assert.False(t, st.IsLoadingHistorical)
	assert.Equal(t, numbers(s.GetVisibleBlocks()), numbers(restored.GetVisibleBlocks()))

	ok, err := restored.Ingest(context.Background(), mkBlock(250))
	require.NoError(t, err)
	assert.False(t, ok, "restored keys are indexed")
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	var calls atomic.Int64
	unsubscribe := s.Subscribe(func() { calls.Add(1) })

	ingestAll(t, s, 1) // SetTip + Ingest
	assert.Equal(t, int64(2), calls.Load())

	unsubscribe()
	ingestAll(t, s, 2)
	assert.Equal(t, int64(2), calls.Load())
}

func TestNewWindowStore_RejectsBadConfig(t *testing.T) {
	_, err := NewWindowStore(WindowConfig{}, newFakeSource(0), nopLogger{})
	assert.Error(t, err)

	cfg := DefaultWindowConfig()
	cfg.DiscardThreshold = cfg.HalfWidth - 1
	_, err = NewWindowStore(cfg, newFakeSource(0), nopLogger{})
	assert.ErrorContains(t, err, "discard threshold")
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(sleepContext(ctx, time.Hour), context.Canceled))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
