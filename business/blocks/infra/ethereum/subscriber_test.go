package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

// fakeNode is a websocket JSON-RPC endpoint that acknowledges eth_subscribe
// and lets the test push notifications.
type fakeNode struct {
	t        *testing.T
	srv      *httptest.Server
	reject   bool
	conns    chan *websocket.Conn
	requests chan string
}

func newFakeNode(t *testing.T, reject bool) *fakeNode {
	t.Helper()
	n := &fakeNode{t: t, reject: reject, conns: make(chan *websocket.Conn, 1), requests: make(chan string, 8)}
	n.srv = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) url() string {
	return "ws" + strings.TrimPrefix(n.srv.URL, "http")
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	ctx := context.Background()
	handedOff := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !handedOff {
				conn.CloseNow()
			}
			return
		}
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		n.requests <- req.Method

		var reply string
		switch {
		case req.Method == "eth_subscribe" && n.reject:
			reply = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"notifications not supported"}}`, req.ID)
		case req.Method == "eth_subscribe":
			reply = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"0xabc"}`, req.ID)
		default:
			reply = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, req.ID)
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			return
		}
		if req.Method == "eth_subscribe" && !n.reject && !handedOff {
			handedOff = true
			n.conns <- conn
		}
	}
}

func pushHead(t *testing.T, conn *websocket.Conn, subID string, number uint64) {
	t.Helper()
	head := map[string]any{
		"number":        fmt.Sprintf("0x%x", number),
		"hash":          fmt.Sprintf("0x%064x", number+0x1000),
		"parentHash":    fmt.Sprintf("0x%064x", number+0x0fff),
		"timestamp":     "0x10",
		"gasUsed":       "0x0",
		"gasLimit":      "0x1c9c380",
		"baseFeePerGas": "0x1",
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params":  map[string]any{"subscription": subID, "result": head},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, data))
}

type received struct {
	mu     sync.Mutex
	blocks []*domain.Block
	errs   []error
}

func (r *received) onBlock(b *domain.Block) {
	r.mu.Lock()
	r.blocks = append(r.blocks, b)
	r.mu.Unlock()
}

func (r *received) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *received) numbers() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.blocks))
	for i, b := range r.blocks {
		out[i] = b.Number
	}
	return out
}

func (r *received) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestSubscriber_DeliversHeadsInOrder(t *testing.T) {
	node := newFakeNode(t, false)
	sub, err := NewSubscriber(SubscriberConfig{WSURL: node.url(), SubscribeTimeout: 2 * time.Second}, nil, nopLogger{})
	require.NoError(t, err)

	var got received
	unsubscribe, err := sub.SubscribeNewBlocks(context.Background(), got.onBlock, got.onError)
	require.NoError(t, err)
	defer unsubscribe()

	conn := <-node.conns
	pushHead(t, conn, "0xabc", 100)
	pushHead(t, conn, "0xother", 999) // not ours
	pushHead(t, conn, "0xabc", 101)

	require.Eventually(t, func() bool { return len(got.numbers()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{100, 101}, got.numbers())
	assert.Equal(t, uint64(16_000), got.blocks[0].TimestampMs)
	assert.Zero(t, got.errCount())
}

func TestSubscriber_HydratesTransactionCount(t *testing.T) {
	rpc, client := newFakeRPC(t)
	rpc.handle("eth_getBlockByNumber", func(p []json.RawMessage) rpcReply {
		b := blockJSON("0x64", 5, true)
		b["hash"] = fmt.Sprintf("0x%064x", 100+0x1000)
		return rpcReply{result: b}
	})
	src, err := NewSource(client, fastSourceConfig("l2"), nopLogger{})
	require.NoError(t, err)

	node := newFakeNode(t, false)
	sub, err := NewSubscriber(SubscriberConfig{WSURL: node.url(), SubscribeTimeout: 2 * time.Second}, src, nopLogger{})
	require.NoError(t, err)

	var got received
	unsubscribe, err := sub.SubscribeNewBlocks(context.Background(), got.onBlock, got.onError)
	require.NoError(t, err)
	defer unsubscribe()

	pushHead(t, <-node.conns, "0xabc", 100)

	require.Eventually(t, func() bool { return len(got.numbers()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got.mu.Lock()
	defer got.mu.Unlock()
	assert.Equal(t, uint64(5), got.blocks[0].TxCount)
}

func TestSubscriber_RejectedSubscription(t *testing.T) {
	node := newFakeNode(t, true)
	sub, err := NewSubscriber(SubscriberConfig{WSURL: node.url(), SubscribeTimeout: 2 * time.Second}, nil, nopLogger{})
	require.NoError(t, err)

	var got received
	_, err = sub.SubscribeNewBlocks(context.Background(), got.onBlock, got.onError)
	assert.True(t, apperror.IsCode(err, apperror.CodeEthereumSubscribeFailed))
	assert.Zero(t, got.errCount())
}

func TestSubscriber_UnreachableEndpoint(t *testing.T) {
	sub, err := NewSubscriber(SubscriberConfig{WSURL: "ws://127.0.0.1:1", SubscribeTimeout: time.Second}, nil, nopLogger{})
	require.NoError(t, err)

	_, err = sub.SubscribeNewBlocks(context.Background(), func(*domain.Block) {}, func(error) {})
	assert.Error(t, err)
}

func TestSubscriber_ConnectionLossReportsOnce(t *testing.T) {
	node := newFakeNode(t, false)
	sub, err := NewSubscriber(SubscriberConfig{WSURL: node.url(), SubscribeTimeout: 2 * time.Second}, nil, nopLogger{})
	require.NoError(t, err)

	var got received
	unsubscribe, err := sub.SubscribeNewBlocks(context.Background(), got.onBlock, got.onError)
	require.NoError(t, err)
	defer unsubscribe()

	conn := <-node.conns
	_ = conn.Close(websocket.StatusInternalError, "node restarting")

	require.Eventually(t, func() bool { return got.errCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, got.errCount())
}

func TestSubscriber_UnsubscribeStopsDelivery(t *testing.T) {
	node := newFakeNode(t, false)
	sub, err := NewSubscriber(SubscriberConfig{WSURL: node.url(), SubscribeTimeout: 2 * time.Second}, nil, nopLogger{})
	require.NoError(t, err)

	var got received
	unsubscribe, err := sub.SubscribeNewBlocks(context.Background(), got.onBlock, got.onError)
	require.NoError(t, err)
	conn := <-node.conns

	done := make(chan struct{})
	go func() { unsubscribe(); unsubscribe(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe blocked")
	}

	_ = pushHeadIgnoringErrors(conn, 200)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got.numbers())
	assert.Zero(t, got.errCount())
}

func pushHeadIgnoringErrors(conn *websocket.Conn, number uint64) error {
	data := fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{"number":"0x%x"}}}`, number)
	return conn.Write(context.Background(), websocket.MessageText, []byte(data))
}

func TestNewSubscriber_RequiresURL(t *testing.T) {
	_, err := NewSubscriber(SubscriberConfig{}, nil, nopLogger{})
	assert.True(t, apperror.IsCode(err, apperror.CodeConfigurationError))
}
