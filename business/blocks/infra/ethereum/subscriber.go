package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/logger"
	"github.com/fd1az/blockviz/internal/wsconn"
)

var _ app.Subscriber = (*Subscriber)(nil)

// SubscriberConfig holds configuration for the newHeads subscriber.
type SubscriberConfig struct {
	WSURL            string
	SubscribeTimeout time.Duration // connect plus eth_subscribe acknowledgement
	BufferSize       int           // headers waiting for hydration
	PingInterval     time.Duration
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(wsURL string) SubscriberConfig {
	return SubscriberConfig{
		WSURL:            wsURL,
		SubscribeTimeout: 10 * time.Second,
		BufferSize:       16,
		PingInterval:     30 * time.Second,
	}
}

type subscriberMetrics struct {
	headsReceived  metric.Int64Counter
	headsDropped   metric.Int64Counter
	subscribeFails metric.Int64Counter
}

// Subscriber delivers new blocks from an eth_subscribe("newHeads")
// subscription. newHeads payloads carry no transactions, so when a hydrator
// is set each head is re-read with BlockByNumber to fill in the transaction
// count; the bare head is delivered if that read fails.
type Subscriber struct {
	config   SubscriberConfig
	hydrator app.BlockSource // optional
	logger   logger.LoggerInterface
	metrics  *subscriberMetrics
	nextID   atomic.Uint64
}

// NewSubscriber creates a subscriber. hydrator may be nil.
func NewSubscriber(cfg SubscriberConfig, hydrator app.BlockSource, log logger.LoggerInterface) (*Subscriber, error) {
	if cfg.WSURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("ws url not configured"))
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 10 * time.Second
	}

	s := &Subscriber{config: cfg, hydrator: hydrator, logger: log}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.headsReceived, err = meter.Int64Counter(
		"blockviz_ws_heads_received_total",
		metric.WithDescription("newHeads notifications received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.headsDropped, err = meter.Int64Counter(
		"blockviz_ws_heads_dropped_total",
		metric.WithDescription("newHeads notifications dropped because the buffer was full"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeFails, err = meter.Int64Counter(
		"blockviz_ws_subscribe_errors_total",
		metric.WithDescription("Failed or broken newHeads subscriptions"),
		metric.WithUnit("{error}"),
	)
	return err
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcMessage struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// subscription is one live eth_subscribe session.
type subscription struct {
	parent  *Subscriber
	client  *wsconn.Client
	onBlock func(*domain.Block)
	onError func(error)

	subID   atomic.Value // string
	acks    chan rpcMessage
	heads   chan *rpcBlock
	stopped atomic.Bool
	errOnce sync.Once
	stop    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

// SubscribeNewBlocks connects, subscribes to newHeads and delivers each head
// to onBlock in arrival order. onError fires once if the connection breaks
// while subscribed. The returned func tears the session down without
// blocking.
func (s *Subscriber) SubscribeNewBlocks(ctx context.Context, onBlock func(*domain.Block), onError func(error)) (func(), error) {
	client, err := wsconn.New(wsconn.Config{
		URL:            s.config.WSURL,
		Name:           "l2-ws",
		PingInterval:   s.config.PingInterval,
		MaxMessageSize: 1 << 20,
	})
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		parent:  s,
		client:  client,
		onBlock: onBlock,
		onError: onError,
		acks:    make(chan rpcMessage, 1),
		heads:   make(chan *rpcBlock, s.config.BufferSize),
		ctx:     sessCtx,
		cancel:  cancel,
	}
	client.OnMessage(sub.handleMessage)
	client.OnStateChange(sub.handleState)

	subCtx, subCancel := context.WithTimeout(ctx, s.config.SubscribeTimeout)
	defer subCancel()

	if err := sub.subscribe(subCtx); err != nil {
		s.metrics.subscribeFails.Add(ctx, 1)
		sub.stopped.Store(true)
		cancel()
		_ = client.Close()
		return nil, apperror.New(apperror.CodeEthereumSubscribeFailed, apperror.WithCause(err))
	}

	go sub.deliver()
	s.logger.Info(ctx, "subscribed to new heads", "subscription", sub.subID.Load())
	return sub.unsubscribe, nil
}

func (sub *subscription) subscribe(ctx context.Context) error {
	if err := sub.client.Connect(ctx); err != nil {
		return err
	}

	id := sub.parent.nextID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: "eth_subscribe", Params: []any{"newHeads"}}
	if err := sub.client.SendJSON(ctx, req); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub.acks:
			if msg.ID == nil || *msg.ID != id {
				continue
			}
			if msg.Error != nil {
				return fmt.Errorf("eth_subscribe: %s (code %d)", msg.Error.Message, msg.Error.Code)
			}
			var subID string
			if err := json.Unmarshal(msg.Result, &subID); err != nil || subID == "" {
				return fmt.Errorf("eth_subscribe: unexpected result %s", string(msg.Result))
			}
			sub.subID.Store(subID)
			return nil
		}
	}
}

// handleMessage runs on the websocket read loop and must not block on
// delivery.
func (sub *subscription) handleMessage(ctx context.Context, data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sub.parent.logger.Debug(ctx, "ignoring unreadable ws message", "error", err)
		return
	}

	if msg.ID != nil {
		select {
		case sub.acks <- msg:
		default:
		}
		return
	}
	if msg.Method != "eth_subscription" || msg.Params == nil {
		return
	}
	if id, _ := sub.subID.Load().(string); id != "" && msg.Params.Subscription != id {
		return
	}

	var head rpcBlock
	if err := json.Unmarshal(msg.Params.Result, &head); err != nil {
		sub.parent.logger.Warn(ctx, "discarding malformed head", "error", err)
		return
	}
	sub.parent.metrics.headsReceived.Add(ctx, 1)

	select {
	case sub.heads <- &head:
	default:
		sub.parent.metrics.headsDropped.Add(ctx, 1)
		sub.parent.logger.Warn(ctx, "head dropped, buffer full")
	}
}

func (sub *subscription) handleState(state wsconn.State, err error) {
	if state != wsconn.StateDisconnected || err == nil || sub.stopped.Load() {
		return
	}
	if _, ok := sub.subID.Load().(string); !ok {
		// still subscribing; the caller sees the error directly
		return
	}
	sub.errOnce.Do(func() {
		sub.parent.metrics.subscribeFails.Add(context.Background(), 1)
		sub.onError(err)
	})
}

// deliver hydrates and hands heads to onBlock one at a time.
func (sub *subscription) deliver() {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case head := <-sub.heads:
			block, err := head.toDomain()
			if err != nil {
				sub.parent.logger.Warn(sub.ctx, "discarding head", "error", err)
				continue
			}
			if h := sub.parent.hydrator; h != nil {
				full, err := h.BlockByNumber(sub.ctx, block.Number)
				switch {
				case err == nil && full != nil && full.Hash == block.Hash:
					block = full
				case err != nil && sub.ctx.Err() == nil:
					sub.parent.logger.Debug(sub.ctx, "head hydration failed", "block", block.Number, "error", err)
				}
			}
			if sub.stopped.Load() {
				return
			}
			sub.onBlock(block)
		}
	}
}

func (sub *subscription) unsubscribe() {
	sub.stop.Do(func() {
		sub.stopped.Store(true)
		sub.cancel()
		go func() {
			if id, ok := sub.subID.Load().(string); ok && sub.client.IsConnected() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = sub.client.SendJSON(ctx, rpcRequest{
					JSONRPC: "2.0",
					ID:      sub.parent.nextID.Add(1),
					Method:  "eth_unsubscribe",
					Params:  []any{id},
				})
				cancel()
			}
			_ = sub.client.Close()
		}()
	})
}
