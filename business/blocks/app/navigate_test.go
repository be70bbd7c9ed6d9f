package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

func TestNavigateToBlock_Validation(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, 100)

	err := s.NavigateToBlock(context.Background(), -1)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidArgument))

	err = s.NavigateToBlock(context.Background(), 101)
	assert.True(t, apperror.IsCode(err, apperror.CodeBlockOutOfRange))

	assert.Zero(t, src.callCount())
	assert.True(t, s.State().IsLiveMode)
}

func TestNavigateToBlock_LoadsWindow(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(1000)

	require.NoError(t, s.NavigateToBlock(context.Background(), 500))

	st := s.State()
	assert.Equal(t, uint64(500), st.CurrentPosition)
	assert.False(t, st.IsLiveMode)
	assert.False(t, st.IsLoadingHistorical)
	assert.Equal(t, seq(510, 490), numbers(s.GetVisibleBlocks()))
	assert.Equal(t, 21, src.callCount())
}

func TestNavigateToBlock_ClampsAtZeroAndTip(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(25)

	require.NoError(t, s.NavigateToBlock(context.Background(), 3))
	assert.Equal(t, seq(13, 0), numbers(s.GetVisibleBlocks()))

	s.ClearBlocks()
	require.NoError(t, s.NavigateToBlock(context.Background(), 20))
	assert.Equal(t, seq(25, 10), numbers(s.GetVisibleBlocks()))
}

func TestNavigateToBlock_NoFetchWhenPresent(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, seq(80, 120)...)

	require.NoError(t, s.NavigateToBlock(context.Background(), 100))

	assert.Zero(t, src.callCount())
	st := s.State()
	assert.Equal(t, uint64(100), st.CurrentPosition)
	assert.False(t, st.IsLiveMode)
	assert.Contains(t, numbers(s.GetVisibleBlocks()), uint64(100))
}

func TestNavigateToBlock_FetchesOnlyMissing(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, seq(95, 120)...)

	require.NoError(t, s.NavigateToBlock(context.Background(), 100))

	assert.Equal(t, 5, src.callCount()) // 90..94
	assert.Len(t, s.Snapshot().Blocks, 31)
}

func TestNavigateToBlock_FailureLeavesStateUntouched(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, 300)
	before := s.Snapshot()

	src.failOn(205, errUpstream)

	err := s.NavigateToBlock(context.Background(), 200)
	require.Error(t, err)

	var navErr *domain.NavigationError
	require.True(t, errors.As(err, &navErr))
	assert.Equal(t, uint64(200), navErr.Target)
	assert.True(t, apperror.IsCode(err, apperror.CodeUpstreamTransient))

	assert.Equal(t, before, s.Snapshot())
	assert.False(t, s.State().IsLoadingHistorical)
}

func TestNavigateToBlock_NilBlockIsNotFound(t *testing.T) {
	s := newTestStore(nilSource{}, nil)

	err := s.NavigateToBlock(context.Background(), 5)
	assert.True(t, apperror.IsCode(err, apperror.CodeBlockNotFound))
}

type nilSource struct{}

func (nilSource) HeadNumber(context.Context) (uint64, error) { return 0, nil }
func (nilSource) BlockByNumber(context.Context, uint64) (*domain.Block, error) {
	return nil, nil
}

func TestNavigateToBlock_DiscardsFarBlocks(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, seq(1000, 1004)...)

	require.NoError(t, s.NavigateToBlock(context.Background(), 100))
	assert.Equal(t, seq(110, 90), numbers(s.Snapshot().Blocks))

	// a short hop keeps what is already there
	require.NoError(t, s.NavigateToBlock(context.Background(), 140))
	got := numbers(s.Snapshot().Blocks)
	assert.Contains(t, got, uint64(90))
	assert.Contains(t, got, uint64(150))
}

func TestNavigateToBlock_SmartTrimKeepsTarget(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, func(c *WindowConfig) { c.MaxBlocks = 5; c.WindowSize = 5 })
	s.SetTip(1000)

	require.NoError(t, s.NavigateToBlock(context.Background(), 100))

	assert.Equal(t, []uint64{110, 109, 108, 107, 100}, numbers(s.Snapshot().Blocks))
	assert.Contains(t, numbers(s.GetVisibleBlocks()), uint64(100))
}

func TestNavigateToBlock_BatchesWithDelay(t *testing.T) {
	src := newFakeSource(0)
	var sleeps []time.Duration
	s := newTestStore(src, func(c *WindowConfig) { c.BatchSize = 4 },
		WithSleep(func(ctx context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		}))
	s.SetTip(1000)

	require.NoError(t, s.NavigateToBlock(context.Background(), 500))

	// 21 blocks in batches of 4 -> 6 batches, 5 pauses
	assert.Len(t, sleeps, 5)
	assert.Equal(t, 200*time.Millisecond, sleeps[0])
}

func TestNavigateToBlock_LoadingFlagWhileInFlight(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(1000)
	gate := src.gate(500)

	done := make(chan error, 1)
	go func() { done <- s.NavigateToBlock(context.Background(), 500) }()

	require.Eventually(t, func() bool { return s.State().IsLoadingHistorical }, time.Second, time.Millisecond)
	_, err := s.Ingest(context.Background(), mkBlock(1001))
	require.NoError(t, err)
	assert.True(t, s.State().IsLoadingHistorical, "live ingestion does not clear the flag")

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, s.State().IsLoadingHistorical)
}

func TestNavigateToBlock_LatestRequestWins(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(10_000)
	slow := src.gate(1000)

	first := make(chan error, 1)
	go func() { first <- s.NavigateToBlock(context.Background(), 1000) }()
	require.Eventually(t, func() bool { return s.State().IsLoadingHistorical }, time.Second, time.Millisecond)

	require.NoError(t, s.NavigateToBlock(context.Background(), 5000))
	close(slow)

	err := <-first
	assert.True(t, apperror.IsCode(err, apperror.CodeNavigationSuperseded))

	st := s.State()
	assert.Equal(t, uint64(5000), st.CurrentPosition)
	assert.False(t, st.IsLoadingHistorical)
	assert.NotContains(t, numbers(s.Snapshot().Blocks), uint64(1000))
}

func TestNavigateToBlock_ClearBlocksSupersedes(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, seq(95, 100)...)
	gate := src.gate(90)

	done := make(chan error, 1)
	go func() { done <- s.NavigateToBlock(context.Background(), 100) }()
	require.Eventually(t, func() bool { return s.State().IsLoadingHistorical }, time.Second, time.Millisecond)

	s.ClearBlocks()
	close(gate)

	assert.True(t, apperror.IsCode(<-done, apperror.CodeNavigationSuperseded))
	st := s.State()
	assert.Zero(t, st.BlockCount)
	assert.True(t, st.IsLiveMode)
	assert.False(t, st.IsLoadingHistorical)
}

func TestNavigateToBlock_LiveModeSupersedes(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(2000)
	gate := src.gate(1000)

	done := make(chan error, 1)
	go func() { done <- s.NavigateToBlock(context.Background(), 1000) }()
	require.Eventually(t, func() bool { return s.State().IsLoadingHistorical }, time.Second, time.Millisecond)

	s.SetLiveMode(true)
	close(gate)

	assert.True(t, apperror.IsCode(<-done, apperror.CodeNavigationSuperseded))
	st := s.State()
	assert.True(t, st.IsLiveMode)
	assert.Equal(t, uint64(2000), st.CurrentPosition)
}

func TestNavigateToBlock_ResetDuringLoad(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	s.SetTip(2000)
	gate := src.gate(1000)

	done := make(chan error, 1)
	go func() { done <- s.NavigateToBlock(context.Background(), 1000) }()
	require.Eventually(t, func() bool { return s.State().IsLoadingHistorical }, time.Second, time.Millisecond)

	s.Reset()
	assert.False(t, s.State().IsLoadingHistorical)
	close(gate)

	assert.Error(t, <-done)
	st := s.State()
	assert.False(t, st.IsLoadingHistorical)
	assert.Zero(t, st.BlockCount)
}

func TestNavigateRelative(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, seq(0, 40)...)
	s.SetLiveMode(false)
	s.SetCurrentPosition(15)

	require.NoError(t, s.NavigateRelative(context.Background(), domain.DirectionNext))
	assert.Equal(t, uint64(16), s.State().CurrentPosition)

	require.NoError(t, s.NavigateRelative(context.Background(), domain.DirectionPrev))
	require.NoError(t, s.NavigateRelative(context.Background(), domain.DirectionPrev))
	assert.Equal(t, uint64(14), s.State().CurrentPosition)
	assert.Zero(t, src.callCount())
}

func TestNavigateRelative_FallbackBeyondStored(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, seq(10, 20)...)
	s.SetLiveMode(false)

	// at the newest entry: next has no neighbour, so it targets oldest-1
	s.SetCurrentPosition(20)
	require.NoError(t, s.NavigateRelative(context.Background(), domain.DirectionNext))
	assert.Equal(t, uint64(9), s.State().CurrentPosition)
	assert.Contains(t, numbers(s.Snapshot().Blocks), uint64(0))

	// at the oldest entry: prev targets newest+1, which is past the tip
	s.SetCurrentPosition(0)
	err := s.NavigateRelative(context.Background(), domain.DirectionPrev)
	assert.True(t, apperror.IsCode(err, apperror.CodeBlockOutOfRange))
}

func TestNavigateRelative_Rejects(t *testing.T) {
	s := newTestStore(newFakeSource(0), nil)
	err := s.NavigateRelative(context.Background(), domain.Direction("up"))
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidArgument))

	// empty store at position 0: next targets -1
	err = s.NavigateRelative(context.Background(), domain.DirectionNext)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidArgument))
}

func TestNavigateToBlock_EnrichesBestEffort(t *testing.T) {
	src := newFakeSource(0)
	origins := &fakeOrigins{}
	s := newTestStore(src, nil, WithOriginResolver(origins))
	s.SetTip(100)

	require.NoError(t, s.NavigateToBlock(context.Background(), 50))
	for _, b := range s.Snapshot().Blocks {
		require.NotNil(t, b.L1Origin, "block %s", b.Number)
	}

	failing := newTestStore(newFakeSource(0), nil, WithOriginResolver(&fakeOrigins{err: errors.New("boom")}))
	failing.SetTip(100)
	require.NoError(t, failing.NavigateToBlock(context.Background(), 50))
	assert.Nil(t, failing.Snapshot().Blocks[0].L1Origin)
}

func TestLoadHistorical(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	ingestAll(t, s, 100)

	require.NoError(t, s.LoadHistorical(context.Background(), 99, 25))

	st := s.State()
	assert.True(t, st.IsLiveMode)
	assert.Equal(t, uint64(100), st.CurrentPosition)
	assert.False(t, st.IsLoadingHistorical)
	assert.Equal(t, seq(100, 75), numbers(s.Snapshot().Blocks))
	assert.Equal(t, 25, src.callCount())
}

func TestLoadHistorical_ErrorKeepsEarlierBatches(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	src.failOn(60, errUpstream)

	err := s.LoadHistorical(context.Background(), 79, 30)
	require.Error(t, err)

	got := numbers(s.Snapshot().Blocks)
	assert.Len(t, got, 10, "first batch (50..59) merged before the failure")
	assert.False(t, s.State().IsLoadingHistorical)
}

func TestBlockService_LoadOlder(t *testing.T) {
	src := newFakeSource(0)
	s := newTestStore(src, nil)
	svc := NewBlockService(s, nil, src, nil)
	ingestAll(t, s, 100, 101)

	require.NoError(t, svc.LoadOlder(context.Background(), 10))

	oldest, ok := s.OldestNumber()
	require.True(t, ok)
	assert.Equal(t, uint64(90), oldest)
	assert.Equal(t, seq(101, 90), numbers(s.Snapshot().Blocks))
	assert.True(t, s.State().IsLiveMode)

	genesis := newTestStore(src, nil)
	ingestAll(t, genesis, 0)
	err := NewBlockService(genesis, nil, src, nil).LoadOlder(context.Background(), 10)
	assert.True(t, apperror.IsCode(err, apperror.CodeBlockOutOfRange))
}
