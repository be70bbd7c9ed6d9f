package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/logger"
)

// FeedStatus reports how the live feed is currently receiving blocks.
type FeedStatus string

const (
	FeedIdle       FeedStatus = "idle"
	FeedSubscribed FeedStatus = "subscribed"
	FeedPolling    FeedStatus = "polling"
	FeedStopped    FeedStatus = "stopped"
)

func (s FeedStatus) gaugeValue() int64 {
	switch s {
	case FeedSubscribed:
		return 1
	case FeedPolling:
		return 2
	case FeedStopped:
		return 3
	default:
		return 0
	}
}

// FeedConfig tunes the live feed.
type FeedConfig struct {
	PollInterval  time.Duration
	EnrichTimeout time.Duration
}

// DefaultFeedConfig returns the standard feed settings.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		PollInterval:  2 * time.Second,
		EnrichTimeout: 5 * time.Second,
	}
}

// BlockSink receives blocks observed by the feed. *WindowStore implements it.
type BlockSink interface {
	SetTip(n uint64)
	Ingest(ctx context.Context, b *domain.Block) (bool, error)
	AttachL1Origin(key string, origin domain.L1Origin) bool
}

// LiveFeed bridges new-block notifications into a BlockSink. It prefers the
// push subscription and falls back to polling for good when the
// subscription fails or is unavailable. L1 origin enrichment runs after the
// block is ingested and never delays it.
type LiveFeed struct {
	cfg        FeedConfig
	sink       BlockSink
	source     BlockSource
	subscriber Subscriber // optional
	origins    OriginResolver // optional
	log        logger.LoggerInterface
	metrics    *appMetrics

	mu          sync.Mutex
	status      FeedStatus
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	lastPolled atomic.Uint64
	wg         sync.WaitGroup
}

// NewLiveFeed creates a feed. subscriber and origins may be nil.
func NewLiveFeed(cfg FeedConfig, sink BlockSink, source BlockSource, subscriber Subscriber, origins OriginResolver, log logger.LoggerInterface) (*LiveFeed, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultFeedConfig().PollInterval
	}
	m, err := newAppMetrics()
	if err != nil {
		return nil, err
	}
	return &LiveFeed{
		cfg:        cfg,
		sink:       sink,
		source:     source,
		subscriber: subscriber,
		origins:    origins,
		log:        log,
		metrics:    m,
		status:     FeedIdle,
	}, nil
}

// Status returns the current feed status.
func (f *LiveFeed) Status() FeedStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Start begins delivering blocks until ctx is done or Stop is called.
// Calling Start on a running or stopped feed is a no-op.
func (f *LiveFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.status != FeedIdle {
		f.mu.Unlock()
		return
	}
	f.ctx, f.cancel = context.WithCancel(ctx)
	runCtx := f.ctx
	f.mu.Unlock()

	if f.subscriber != nil {
		unsubscribe, err := f.subscriber.SubscribeNewBlocks(runCtx, f.onBlock, f.onSubscriptionError)
		if err == nil {
			f.mu.Lock()
			if f.status == FeedIdle {
				f.unsubscribe = unsubscribe
				f.setStatusLocked(FeedSubscribed)
				f.mu.Unlock()
				f.log.Info(runCtx, "live feed subscribed to new blocks")
				return
			}
			// Subscription broke or the feed stopped before we got here.
			f.mu.Unlock()
			unsubscribe()
			return
		}
		f.log.Warn(runCtx, "block subscription failed, falling back to polling", "error", err)
	}

	f.startPolling()
}

// Stop tears the feed down: it unsubscribes, cancels the poll timer and
// waits for background work to finish. Safe to call more than once.
func (f *LiveFeed) Stop() {
	f.mu.Lock()
	if f.status == FeedStopped {
		f.mu.Unlock()
		return
	}
	cancel, unsubscribe := f.cancel, f.unsubscribe
	f.unsubscribe = nil
	f.setStatusLocked(FeedStopped)
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
}

func (f *LiveFeed) onSubscriptionError(err error) {
	f.mu.Lock()
	if f.status != FeedSubscribed && f.status != FeedIdle {
		f.mu.Unlock()
		return
	}
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()

	f.log.Warn(f.runContext(), "block subscription error, switching to polling", "error", err)
	if unsubscribe != nil {
		unsubscribe()
	}
	f.startPolling()
}

func (f *LiveFeed) startPolling() {
	f.mu.Lock()
	if f.status == FeedPolling || f.status == FeedStopped {
		f.mu.Unlock()
		return
	}
	f.setStatusLocked(FeedPolling)
	ctx := f.ctx
	f.wg.Add(1)
	f.mu.Unlock()

	f.log.Info(ctx, "live feed polling", "interval", f.cfg.PollInterval.String())
	go f.pollLoop(ctx)
}

// pollLoop polls once per interval. Errors are logged and retried on the
// next tick with no backoff.
func (f *LiveFeed) pollLoop(ctx context.Context) {
	defer f.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := f.pollOnce(ctx); err != nil && ctx.Err() == nil {
			f.metrics.pollErrors.Add(ctx, 1)
			f.log.Warn(ctx, "poll failed", "error", err)
		}
		timer.Reset(f.cfg.PollInterval)
	}
}

func (f *LiveFeed) pollOnce(ctx context.Context) error {
	head, err := f.source.HeadNumber(ctx)
	if err != nil {
		return err
	}
	f.sink.SetTip(head)

	if f.lastPolled.Load() == head && head != 0 {
		return nil
	}
	b, err := f.source.BlockByNumber(ctx, head)
	if err != nil {
		return err
	}
	f.lastPolled.Store(head)
	f.onBlock(b)
	return nil
}

// onBlock handles one observed block from either path.
func (f *LiveFeed) onBlock(b *domain.Block) {
	ctx := f.runContext()
	if b == nil {
		f.log.Debug(ctx, "discarding empty block notification")
		return
	}

	f.sink.SetTip(b.Number)
	inserted, err := f.sink.Ingest(ctx, b)
	if err != nil {
		f.log.Warn(ctx, "discarding malformed block", "block", b.Number, "error", err)
		return
	}
	if !inserted || f.origins == nil || b.L1Origin != nil {
		return
	}

	f.mu.Lock()
	if f.status == FeedStopped {
		f.mu.Unlock()
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go f.enrich(ctx, b.Number, b.Key())
}

func (f *LiveFeed) enrich(ctx context.Context, number uint64, key string) {
	defer f.wg.Done()

	if f.cfg.EnrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.EnrichTimeout)
		defer cancel()
	}

	origin, err := f.origins.OriginOf(ctx, number)
	if err != nil {
		err = apperror.New(apperror.CodeEnrichmentFailed, apperror.WithCause(err))
		f.metrics.enrichmentFailures.Add(ctx, 1)
		f.log.Warn(ctx, "l1 origin enrichment failed", "block", number, "error", err)
		return
	}
	f.sink.AttachL1Origin(key, origin)
}

func (f *LiveFeed) runContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx == nil {
		return context.Background()
	}
	return f.ctx
}

func (f *LiveFeed) setStatusLocked(s FeedStatus) {
	f.status = s
	f.metrics.feedMode.Record(context.Background(), s.gaugeValue(),
		metric.WithAttributes(attribute.String("status", string(s))))
}
