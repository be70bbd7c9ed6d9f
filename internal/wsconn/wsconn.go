// Package wsconn provides a WebSocket client with connection state tracking
// and retrying connects.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"

	"github.com/fd1az/blockviz/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// MessageHandler receives every inbound message. It runs on the read loop.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is notified on every state transition.
type StateHandler func(state State, err error)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // used in errors
	PingInterval   time.Duration // 0 disables pings
	ReadTimeout    time.Duration // ping round-trip deadline
	WriteTimeout   time.Duration
	MaxMessageSize int64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		PingInterval:   30 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
	}
}

// Client is a WebSocket client. A read failure leaves the client
// disconnected; callers decide whether to reconnect.
type Client struct {
	config Config

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	closed    bool
	onMessage MessageHandler
	onState   StateHandler

	writeMu sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err), apperror.WithContext(config.Name))
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("%s: unsupported scheme %q", config.Name, u.Scheme)))
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	return &Client{config: config, state: StateDisconnected}, nil
}

// OnMessage registers the inbound message handler. Set it before Connect.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnStateChange registers the state transition handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// Connect dials the server once and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	c.mu.Unlock()

	c.setState(StateConnecting, nil)

	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		wrapped := apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err), apperror.WithContext(c.config.Name))
		c.setState(StateDisconnected, wrapped)
		return wrapped
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}
	c.conn = conn
	c.cancel = cancel
	handler := c.onMessage
	c.mu.Unlock()

	c.setState(StateConnected, nil)

	go c.readLoop(loopCtx, conn, handler)
	if c.config.PingInterval > 0 {
		go c.pingLoop(loopCtx, conn)
	}
	return nil
}

// ConnectWithRetry retries Connect with exponential backoff until it
// succeeds, MaxReconnects is exhausted, or ctx is done.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.config.InitialBackoff),
		backoff.WithMaxInterval(c.config.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	if c.config.MaxReconnects > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.config.MaxReconnects))
	}

	op := func() error {
		err := c.Connect(ctx)
		if apperror.IsCode(err, apperror.CodeWebSocketClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		c.setState(StateReconnecting, err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Send writes a text message. Writes are serialized.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !c.IsConnected() {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(c.config.Name+": not connected"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err), apperror.WithContext(c.config.Name))
	}
	return nil
}

// SendJSON marshals v and sends it.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err), apperror.WithContext(c.config.Name+": marshal"))
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler MessageHandler) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			current := c.conn == conn
			if current {
				c.conn = nil
				if c.cancel != nil {
					c.cancel()
					c.cancel = nil
				}
			}
			c.mu.Unlock()

			if closed || !current {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				err = apperror.New(apperror.CodeWebSocketClosed, apperror.WithCause(err), apperror.WithContext(c.config.Name))
			} else {
				err = apperror.New(apperror.CodeWebSocketConnectionError, apperror.WithCause(err), apperror.WithContext(c.config.Name))
			}
			c.setState(StateDisconnected, err)
			return
		}
		if handler != nil {
			handler(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.config.ReadTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				// Unblocks the read loop, which reports the disconnect.
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (c *Client) setState(state State, err error) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()

	c.mu.Lock()
	h := c.onState
	c.mu.Unlock()
	if h != nil {
		h(state, err)
	}
}
