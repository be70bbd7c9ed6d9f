package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any)       {}
func (nopLogger) Info(context.Context, string, ...any)        {}
func (nopLogger) Warn(context.Context, string, ...any)        {}
func (nopLogger) Error(context.Context, string, ...any)       {}
func (nopLogger) Debugc(context.Context, int, string, ...any) {}
func (nopLogger) Infoc(context.Context, int, string, ...any)  {}
func (nopLogger) Warnc(context.Context, int, string, ...any)  {}
func (nopLogger) Errorc(context.Context, int, string, ...any) {}

// rpcReply is what a fake method returns. A non-zero status short-circuits
// the JSON-RPC envelope and answers with that HTTP status instead.
type rpcReply struct {
	result any
	code   int
	msg    string
	status int
}

type rpcHandler func(params []json.RawMessage) rpcReply

// fakeRPC is a minimal JSON-RPC 2.0 server.
type fakeRPC struct {
	mu      sync.Mutex
	methods map[string]rpcHandler
	calls   map[string]int
}

func newFakeRPC(t *testing.T) (*fakeRPC, *ethclient.Client) {
	t.Helper()
	f := &fakeRPC{methods: map[string]rpcHandler{}, calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	client, err := ethclient.Dial(srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return f, client
}

func (f *fakeRPC) handle(method string, h rpcHandler) {
	f.mu.Lock()
	f.methods[method] = h
	f.mu.Unlock()
}

func (f *fakeRPC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRPC) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	h := f.methods[req.Method]
	f.mu.Unlock()

	reply := rpcReply{code: -32601, msg: "method not found"}
	if h != nil {
		reply = h(req.Params)
	}
	if reply.status != 0 {
		http.Error(w, http.StatusText(reply.status), reply.status)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if reply.code != 0 {
		resp["error"] = map[string]any{"code": reply.code, "message": reply.msg}
	} else {
		resp["result"] = reply.result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func fastSourceConfig(name string) SourceConfig {
	cfg := DefaultSourceConfig(name)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

// blockJSON renders an eth_getBlockByNumber result.
func blockJSON(number string, txs int, baseFee bool) map[string]any {
	hashes := make([]string, txs)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("0x%064x", 0xf00+i)
	}
	b := map[string]any{
		"number":       number,
		"hash":         fmt.Sprintf("0x%064x", 0xaa),
		"parentHash":   fmt.Sprintf("0x%064x", 0xa9),
		"timestamp":    "0x64",
		"gasUsed":      "0x5208",
		"gasLimit":     "0x1c9c380",
		"transactions": hashes,
	}
	if baseFee {
		b["baseFeePerGas"] = "0x3b9aca00"
	}
	return b
}
