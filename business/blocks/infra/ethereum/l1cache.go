package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/logger"
)

var _ app.L1BlockReader = (*L1Cache)(nil)

// L1CacheConfig holds configuration for the L1 block cache.
type L1CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// DefaultL1CacheConfig returns sensible defaults.
func DefaultL1CacheConfig() L1CacheConfig {
	return L1CacheConfig{TTL: time.Hour, MaxEntries: 4096}
}

type l1CacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// L1Cache reads L1 block summaries through source and caches them by
// number. Concurrent misses for the same number share one fetch.
type L1Cache struct {
	source app.BlockSource
	cache  *bigcache.BigCache
	group  singleflight.Group
	logger logger.LoggerInterface

	metrics *l1CacheMetrics
}

type cachedL1Block struct {
	Number      uint64      `json:"number"`
	Hash        common.Hash `json:"hash"`
	TimestampMs uint64      `json:"timestampMs"`
	TxCount     uint64      `json:"txCount"`
}

// NewL1Cache creates a cache in front of the L1 block source.
func NewL1Cache(ctx context.Context, source app.BlockSource, cfg L1CacheConfig, log logger.LoggerInterface) (*L1Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultL1CacheConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultL1CacheConfig().MaxEntries
	}

	bcCfg := bigcache.DefaultConfig(cfg.TTL)
	bcCfg.MaxEntriesInWindow = cfg.MaxEntries
	bcCfg.MaxEntrySize = 256
	bcCfg.Verbose = false
	cache, err := bigcache.New(ctx, bcCfg)
	if err != nil {
		return nil, fmt.Errorf("create l1 cache: %w", err)
	}

	c := &L1Cache{source: source, cache: cache, logger: log}
	if err := c.initMetrics(); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *L1Cache) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &l1CacheMetrics{}

	c.metrics.hits, err = meter.Int64Counter(
		"blockviz_l1_cache_hits_total",
		metric.WithDescription("L1 block cache hits"),
	)
	if err != nil {
		return err
	}

	c.metrics.misses, err = meter.Int64Counter(
		"blockviz_l1_cache_misses_total",
		metric.WithDescription("L1 block cache misses"),
	)
	return err
}

// L1Block returns the summary of L1 block number.
func (c *L1Cache) L1Block(ctx context.Context, number uint64) (domain.L1Block, error) {
	key := strconv.FormatUint(number, 10)

	if data, err := c.cache.Get(key); err == nil {
		var cached cachedL1Block
		if err := json.Unmarshal(data, &cached); err == nil {
			c.metrics.hits.Add(ctx, 1)
			return domain.L1Block(cached), nil
		}
		_ = c.cache.Delete(key)
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		c.logger.Warn(ctx, "l1 cache read failed", "block", number, "error", err)
	}
	c.metrics.misses.Add(ctx, 1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		b, err := c.source.BlockByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		summary := cachedL1Block{
			Number:      b.Number,
			Hash:        b.Hash,
			TimestampMs: b.TimestampMs,
			TxCount:     b.TxCount,
		}
		if data, err := json.Marshal(summary); err == nil {
			if err := c.cache.Set(key, data); err != nil {
				c.logger.Warn(ctx, "l1 cache write failed", "block", number, "error", err)
			}
		}
		return summary, nil
	})
	if err != nil {
		return domain.L1Block{}, err
	}
	return domain.L1Block(v.(cachedL1Block)), nil
}

// Len returns the number of cached blocks.
func (c *L1Cache) Len() int {
	return c.cache.Len()
}

// Close releases the cache.
func (c *L1Cache) Close() error {
	return c.cache.Close()
}
