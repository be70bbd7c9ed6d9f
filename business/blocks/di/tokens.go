// Package di contains dependency injection tokens for the blocks context.
package di

import (
	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/infra/api"
	"github.com/fd1az/blockviz/internal/di"
)

// Public service tokens - exposed to the CLI and UI
var (
	BlockService = di.NewToken[*app.BlockService]("blocks.BlockService")
	WindowStore  = di.NewToken[*app.WindowStore]("blocks.WindowStore")
	LiveFeed     = di.NewToken[*app.LiveFeed]("blocks.LiveFeed")
	APIHandlers  = di.NewToken[*api.Handlers]("blocks.APIHandlers")
)

// Private dependency tokens - internal to the blocks module
var (
	L2Source       = di.NewToken[app.BlockSource]("blocks:l2Source")
	Subscriber     = di.NewToken[app.Subscriber]("blocks:subscriber")
	OriginResolver = di.NewToken[app.OriginResolver]("blocks:originResolver")
	L1Reader       = di.NewToken[app.L1BlockReader]("blocks:l1Reader")
	SnapshotRepo   = di.NewToken[app.SnapshotRepository]("blocks:snapshotRepo")
	Persister      = di.NewToken[*app.Persister]("blocks:persister")
)

func GetBlockService(c di.ServiceRegistry) *app.BlockService {
	return di.GetToken(c, BlockService)
}

func GetWindowStore(c di.ServiceRegistry) *app.WindowStore {
	return di.GetToken(c, WindowStore)
}

func GetLiveFeed(c di.ServiceRegistry) *app.LiveFeed {
	return di.GetToken(c, LiveFeed)
}

func GetAPIHandlers(c di.ServiceRegistry) *api.Handlers {
	return di.GetToken(c, APIHandlers)
}

func GetL2Source(c di.ServiceRegistry) app.BlockSource {
	return di.GetToken(c, L2Source)
}

func GetSubscriber(c di.ServiceRegistry) app.Subscriber {
	return di.GetToken(c, Subscriber)
}

func GetOriginResolver(c di.ServiceRegistry) app.OriginResolver {
	return di.GetToken(c, OriginResolver)
}

// GetL1Reader returns nil when no L1 endpoint is configured.
func GetL1Reader(c di.ServiceRegistry) app.L1BlockReader {
	return di.GetToken(c, L1Reader)
}

// GetSnapshotRepo returns nil when persistence is disabled.
func GetSnapshotRepo(c di.ServiceRegistry) app.SnapshotRepository {
	return di.GetToken(c, SnapshotRepo)
}

func GetPersister(c di.ServiceRegistry) *app.Persister {
	return di.GetToken(c, Persister)
}
