package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/blockviz/internal/apperror"
)

// wsServer runs handler for every accepted connection and closes it normally
// when handler returns.
func wsServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// newHeadsNode answers eth_subscribe and then pushes two head notifications.
func newHeadsNode(conn *websocket.Conn) {
	ctx := context.Background()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var req struct {
		ID     int      `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}
	if json.Unmarshal(data, &req) != nil || req.Method != "eth_subscribe" || len(req.Params) == 0 || req.Params[0] != "newHeads" {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":1,"result":"0xsub"}`))
	for _, n := range []string{"0x64", "0x65"} {
		msg := `{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":{"number":"` + n + `"}}}`
		_ = conn.Write(ctx, websocket.MessageText, []byte(msg))
	}
	// Hold the connection until the client goes away.
	_, _, _ = conn.Read(ctx)
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url, "l2")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	return cfg
}

func TestClient_NewHeadsSubscription(t *testing.T) {
	url := wsServer(t, newHeadsNode)

	client, err := New(testConfig(url))
	require.NoError(t, err)
	defer client.Close()

	var (
		mu   sync.Mutex
		msgs []string
	)
	client.OnMessage(func(_ context.Context, msg []byte) {
		mu.Lock()
		msgs = append(msgs, string(msg))
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())

	require.NoError(t, client.SendJSON(ctx, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []string{"newHeads"},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, msgs[0], `"result":"0xsub"`)
	assert.Contains(t, msgs[1], `"0x64"`)
	assert.Contains(t, msgs[2], `"0x65"`)
}

func TestNew_RejectsNonWebSocketURL(t *testing.T) {
	_, err := New(DefaultConfig("https://mainnet.base.org", "l2"))
	assert.True(t, apperror.IsCode(err, apperror.CodeConfigurationError))
}

func TestClient_ConnectFailure(t *testing.T) {
	client, err := New(testConfig("ws://127.0.0.1:1"))
	require.NoError(t, err)

	var states []State
	client.OnStateChange(func(s State, _ error) { states = append(states, s) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = client.Connect(ctx)

	assert.True(t, apperror.IsCode(err, apperror.CodeWebSocketConnectionError))
	assert.Equal(t, []State{StateConnecting, StateDisconnected}, states)
}

func TestClient_ConnectWithRetryGivesUp(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1")
	cfg.MaxReconnects = 2
	client, err := New(cfg)
	require.NoError(t, err)

	var reconnects atomic.Int32
	client.OnStateChange(func(s State, _ error) {
		if s == StateReconnecting {
			reconnects.Add(1)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = client.ConnectWithRetry(ctx)

	assert.True(t, apperror.IsCode(err, apperror.CodeWebSocketConnectionError))
	assert.Equal(t, int32(2), reconnects.Load())
}

func TestClient_ClosedClientDoesNotReconnect(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) { _, _, _ = conn.Read(context.Background()) })

	client, err := New(testConfig(url))
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())

	err = client.ConnectWithRetry(context.Background())
	assert.True(t, apperror.IsCode(err, apperror.CodeWebSocketClosed))
}

func TestClient_ServerCloseDisconnects(t *testing.T) {
	url := wsServer(t, func(*websocket.Conn) { time.Sleep(20 * time.Millisecond) })

	client, err := New(testConfig(url))
	require.NoError(t, err)
	defer client.Close()

	disconnected := make(chan error, 1)
	client.OnStateChange(func(s State, err error) {
		if s == StateDisconnected {
			select {
			case disconnected <- err:
			default:
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	select {
	case err := <-disconnected:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for disconnect")
	}

	err = client.Send(ctx, []byte("x"))
	assert.True(t, apperror.IsCode(err, apperror.CodeWebSocketSendError))
}

func TestClient_OversizedMessageDisconnects(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.Write(context.Background(), websocket.MessageText, []byte(strings.Repeat("A", 4096)))
		time.Sleep(200 * time.Millisecond)
	})

	cfg := testConfig(url)
	cfg.MaxMessageSize = 100
	client, err := New(cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	assert.Eventually(t, func() bool { return !client.IsConnected() }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_ConcurrentSend(t *testing.T) {
	var received atomic.Int32
	url := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
			received.Add(1)
		}
	})

	client, err := New(testConfig(url))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	const senders, each = 8, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				assert.NoError(t, client.SendJSON(ctx, map[string]int{"sender": i, "seq": j}))
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return received.Load() == senders*each }, 2*time.Second, 10*time.Millisecond)
}
