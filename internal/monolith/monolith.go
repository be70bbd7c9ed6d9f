// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/blockviz/internal/config"
	"github.com/fd1az/blockviz/internal/di"
	"github.com/fd1az/blockviz/internal/httpclient"
	"github.com/fd1az/blockviz/internal/logger"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	L2Client() *ethclient.Client
	// L1Client is nil when no L1 endpoint is configured.
	L1Client() *ethclient.Client
	Services() di.ServiceRegistry
	// OnClose registers fn to run on Close, in reverse registration order.
	OnClose(fn func() error)
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	l2Client  *ethclient.Client
	l1Client  *ethclient.Client
	container di.Container
	closers   []func() error
}

// New creates a new Monolith instance. RPC clients are dialed lazily by
// go-ethereum, so New does not touch the network.
func New(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*app, error) {
	l2Client, err := dialInstrumented(ctx, cfg.L2.HTTPURL, "l2", cfg.L2.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var l1Client *ethclient.Client
	if cfg.L1.HTTPURL != "" {
		l1Client, err = dialInstrumented(ctx, cfg.L1.HTTPURL, "l1", cfg.L2.RequestTimeout)
		if err != nil {
			l2Client.Close()
			return nil, err
		}
	}

	container := di.NewContainer()

	// Register global services
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("l2Client", l2Client)
	container.Register("l1Client", l1Client)

	return &app{
		config:    cfg,
		logger:    log,
		l2Client:  l2Client,
		l1Client:  l1Client,
		container: container,
	}, nil
}

func dialInstrumented(ctx context.Context, url, endpoint string, timeout time.Duration) (*ethclient.Client, error) {
	httpClient, err := httpclient.New(
		httpclient.WithEndpointName(endpoint),
		httpclient.WithRequestTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rpcClient), nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) L2Client() *ethclient.Client {
	return a.l2Client
}

func (a *app) L1Client() *ethclient.Client {
	return a.l1Client
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close closes all resources.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.l1Client != nil {
		a.l1Client.Close()
	}
	if a.l2Client != nil {
		a.l2Client.Close()
	}
	return firstErr
}
