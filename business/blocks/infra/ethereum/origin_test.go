package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/blockviz/internal/apperror"
)

// l1BlockPredeploy answers eth_call against the L1Block getters.
func l1BlockPredeploy(t *testing.T, number uint64, hash common.Hash, timestamp uint64, blockTags chan<- string) rpcHandler {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(L1BlockABI))
	require.NoError(t, err)

	encode := func(method string, v any) string {
		out, err := parsed.Methods[method].Outputs.Pack(v)
		require.NoError(t, err)
		return hexutil.Encode(out)
	}
	replies := map[string]string{
		string(parsed.Methods["number"].ID):    encode("number", number),
		string(parsed.Methods["hash"].ID):      encode("hash", [32]byte(hash)),
		string(parsed.Methods["timestamp"].ID): encode("timestamp", timestamp),
	}

	return func(params []json.RawMessage) rpcReply {
		var msg struct {
			To    common.Address `json:"to"`
			Input hexutil.Bytes  `json:"input"`
			Data  hexutil.Bytes  `json:"data"`
		}
		if err := json.Unmarshal(params[0], &msg); err != nil {
			return rpcReply{code: -32602, msg: err.Error()}
		}
		if msg.To != L1BlockAddress {
			return rpcReply{code: -32000, msg: "wrong contract"}
		}
		input := msg.Input
		if len(input) == 0 {
			input = msg.Data
		}
		if len(input) < 4 {
			return rpcReply{code: -32000, msg: "no selector"}
		}
		if blockTags != nil {
			var tag string
			_ = json.Unmarshal(params[1], &tag)
			blockTags <- tag
		}
		reply, ok := replies[string(input[:4])]
		if !ok {
			return rpcReply{code: -32000, msg: "execution reverted"}
		}
		return rpcReply{result: reply}
	}
}

func TestOriginResolver_OriginOf(t *testing.T) {
	rpc, client := newFakeRPC(t)
	l1Hash := common.HexToHash("0xbeef")
	tags := make(chan string, 3)
	rpc.handle("eth_call", l1BlockPredeploy(t, 21_000_000, l1Hash, 1_700_000_000, tags))

	r, err := NewOriginResolver(client, nopLogger{})
	require.NoError(t, err)

	origin, err := r.OriginOf(context.Background(), 0x1234)
	require.NoError(t, err)

	assert.Equal(t, uint64(21_000_000), origin.Number)
	assert.Equal(t, l1Hash, origin.Hash)
	assert.Equal(t, uint64(1_700_000_000_000), origin.TimestampMs)
	assert.Equal(t, 3, rpc.count("eth_call"))

	for i := 0; i < 3; i++ {
		assert.Equal(t, "0x1234", <-tags, "reads happen at the L2 block")
	}
}

func TestOriginResolver_CallFailure(t *testing.T) {
	rpc, client := newFakeRPC(t)
	rpc.handle("eth_call", func([]json.RawMessage) rpcReply {
		return rpcReply{code: -32000, msg: "missing trie node"}
	})

	r, err := NewOriginResolver(client, nopLogger{})
	require.NoError(t, err)

	_, err = r.OriginOf(context.Background(), 5)
	assert.True(t, apperror.IsCode(err, apperror.CodeContractCallFailed))
}

func TestOriginResolver_BadReturnData(t *testing.T) {
	rpc, client := newFakeRPC(t)
	rpc.handle("eth_call", func([]json.RawMessage) rpcReply {
		return rpcReply{result: hexutil.Encode(bytes.Repeat([]byte{1}, 3))}
	})

	r, err := NewOriginResolver(client, nopLogger{})
	require.NoError(t, err)

	_, err = r.OriginOf(context.Background(), 5)
	assert.True(t, apperror.IsCode(err, apperror.CodeContractCallFailed))
}
