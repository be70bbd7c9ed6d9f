// Package blocks implements the block window bounded context: the L2 block
// window store, the live feed and L1 origin annotation.
package blocks

import (
	"context"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fd1az/blockviz/business/blocks/app"
	blocksDI "github.com/fd1az/blockviz/business/blocks/di"
	"github.com/fd1az/blockviz/business/blocks/infra/api"
	"github.com/fd1az/blockviz/business/blocks/infra/boltstore"
	"github.com/fd1az/blockviz/business/blocks/infra/ethereum"
	"github.com/fd1az/blockviz/internal/config"
	"github.com/fd1az/blockviz/internal/di"
	"github.com/fd1az/blockviz/internal/logger"
	"github.com/fd1az/blockviz/internal/monolith"
	"github.com/fd1az/blockviz/internal/ratelimit"
)

// Module implements the blocks bounded context.
type Module struct {
	// StartFeed controls whether Startup starts the live feed. One-shot
	// commands leave it off.
	StartFeed bool
}

// RegisterServices registers all blocks services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blocksDI.L2Source, func(sr di.ServiceRegistry) app.BlockSource {
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("l2Client").(*ethclient.Client)

		src, err := ethereum.NewSource(client, ethereum.DefaultSourceConfig("l2"), log)
		if err != nil {
			panic("failed to create l2 block source: " + err.Error())
		}
		return src
	})

	// Optional: without a websocket endpoint the feed polls.
	di.RegisterToken(c, blocksDI.Subscriber, func(sr di.ServiceRegistry) app.Subscriber {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if cfg.L2.WebSocketURL == "" {
			return nil
		}

		sub, err := ethereum.NewSubscriber(ethereum.DefaultSubscriberConfig(cfg.L2.WebSocketURL), blocksDI.GetL2Source(sr), log)
		if err != nil {
			panic("failed to create block subscriber: " + err.Error())
		}
		return sub
	})

	di.RegisterToken(c, blocksDI.OriginResolver, func(sr di.ServiceRegistry) app.OriginResolver {
		log := sr.Get("logger").(logger.LoggerInterface)
		client := sr.Get("l2Client").(*ethclient.Client)

		r, err := ethereum.NewOriginResolver(client, log)
		if err != nil {
			panic("failed to create origin resolver: " + err.Error())
		}
		return r
	})

	// Optional: needs an L1 endpoint.
	di.RegisterToken(c, blocksDI.L1Reader, func(sr di.ServiceRegistry) app.L1BlockReader {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		client, _ := sr.Get("l1Client").(*ethclient.Client)
		if client == nil {
			return nil
		}

		src, err := ethereum.NewSource(client, ethereum.DefaultSourceConfig("l1"), log)
		if err != nil {
			panic("failed to create l1 block source: " + err.Error())
		}
		cacheCfg := ethereum.DefaultL1CacheConfig()
		if cfg.L1.CacheTTL > 0 {
			cacheCfg.TTL = cfg.L1.CacheTTL
		}
		if cfg.L1.CacheEntries > 0 {
			cacheCfg.MaxEntries = cfg.L1.CacheEntries
		}
		cache, err := ethereum.NewL1Cache(context.Background(), src, cacheCfg, log)
		if err != nil {
			panic("failed to create l1 cache: " + err.Error())
		}
		return cache
	})

	di.RegisterToken(c, blocksDI.WindowStore, func(sr di.ServiceRegistry) *app.WindowStore {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		store, err := app.NewWindowStore(windowConfig(cfg), blocksDI.GetL2Source(sr), log,
			app.WithOriginResolver(blocksDI.GetOriginResolver(sr)),
			app.WithLimiter(ratelimit.New(cfg.L2.RequestsPerSecond, cfg.L2.Burst)),
		)
		if err != nil {
			panic("failed to create window store: " + err.Error())
		}
		return store
	})

	di.RegisterToken(c, blocksDI.LiveFeed, func(sr di.ServiceRegistry) *app.LiveFeed {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		feedCfg := app.FeedConfig{PollInterval: cfg.Feed.PollInterval, EnrichTimeout: cfg.Feed.EnrichTimeout}
		feed, err := app.NewLiveFeed(feedCfg,
			blocksDI.GetWindowStore(sr),
			blocksDI.GetL2Source(sr),
			blocksDI.GetSubscriber(sr),
			blocksDI.GetOriginResolver(sr),
			log,
		)
		if err != nil {
			panic("failed to create live feed: " + err.Error())
		}
		return feed
	})

	// Optional: persistence can be turned off.
	di.RegisterToken(c, blocksDI.SnapshotRepo, func(sr di.ServiceRegistry) app.SnapshotRepository {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		if !cfg.Storage.Enabled {
			return nil
		}

		store, err := boltstore.Open(cfg.Storage.Path, log)
		if err != nil {
			panic("failed to open snapshot store: " + err.Error())
		}
		return store
	})

	di.RegisterToken(c, blocksDI.Persister, func(sr di.ServiceRegistry) *app.Persister {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		repo := blocksDI.GetSnapshotRepo(sr)
		if repo == nil {
			return nil
		}
		return app.NewPersister(blocksDI.GetWindowStore(sr), repo, cfg.Storage.PersistInterval, log)
	})

	// Public services
	di.RegisterToken(c, blocksDI.BlockService, func(sr di.ServiceRegistry) *app.BlockService {
		return app.NewBlockService(
			blocksDI.GetWindowStore(sr),
			blocksDI.GetLiveFeed(sr),
			blocksDI.GetL2Source(sr),
			blocksDI.GetL1Reader(sr),
		)
	})

	di.RegisterToken(c, blocksDI.APIHandlers, func(sr di.ServiceRegistry) *api.Handlers {
		log := sr.Get("logger").(logger.LoggerInterface)
		return api.NewHandlers(blocksDI.GetBlockService(sr), log)
	})

	return nil
}

// Startup restores the persisted window, starts the feed and the persister,
// and the HTTP API when enabled. Everything started here is torn down by
// the monolith's Close.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	services := mono.Services()

	if l1, ok := blocksDI.GetL1Reader(services).(io.Closer); ok {
		mono.OnClose(l1.Close)
	}

	if persister := blocksDI.GetPersister(services); persister != nil {
		if closer, ok := blocksDI.GetSnapshotRepo(services).(io.Closer); ok {
			mono.OnClose(closer.Close)
		}
		if err := persister.Restore(ctx); err != nil {
			log.Error(ctx, "failed to restore window snapshot", "error", err)
		}

		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			persister.Run(runCtx)
		}()
		mono.OnClose(func() error {
			cancel()
			<-done
			return nil
		})
	}

	if m.StartFeed {
		feed := blocksDI.GetLiveFeed(services)
		feed.Start(ctx)
		mono.OnClose(func() error {
			feed.Stop()
			return nil
		})
	}

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Port, blocksDI.GetAPIHandlers(services), log)
		if err := srv.Start(); err != nil {
			return err
		}
		mono.OnClose(func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(stopCtx)
		})
	}

	log.Info(ctx, "blocks module started",
		"feed", m.StartFeed, "persistence", cfg.Storage.Enabled, "api", cfg.API.Enabled)
	return nil
}

func windowConfig(cfg *config.Config) app.WindowConfig {
	w := app.DefaultWindowConfig()
	if cfg.Window.MaxBlocks > 0 {
		w.MaxBlocks = cfg.Window.MaxBlocks
	}
	if cfg.Window.WindowSize > 0 {
		w.WindowSize = cfg.Window.WindowSize
	}
	if cfg.Window.HalfWidth > 0 {
		w.HalfWidth = cfg.Window.HalfWidth
	}
	if cfg.Window.DiscardThreshold > 0 {
		w.DiscardThreshold = cfg.Window.DiscardThreshold
	}
	if cfg.Window.BatchSize > 0 {
		w.BatchSize = cfg.Window.BatchSize
	}
	if cfg.Window.BatchDelay > 0 {
		w.BatchDelay = cfg.Window.BatchDelay
	}
	if cfg.Feed.EnrichTimeout > 0 {
		w.EnrichTimeout = cfg.Feed.EnrichTimeout
	}
	return w
}
