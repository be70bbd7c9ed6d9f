// Package domain contains the core domain types for the blocks context.
package domain

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Block is the wire/arithmetic form of an L2 block. Nil big.Int fields mean
// the upstream omitted the value.
type Block struct {
	Number        uint64
	Hash          common.Hash
	ParentHash    common.Hash
	TimestampMs   uint64
	GasUsed       *big.Int
	GasLimit      *big.Int
	BaseFeePerGas *big.Int
	TxCount       uint64
	L1Origin      *L1Origin
}

// L1Origin identifies the L1 block an L2 block was derived from.
type L1Origin struct {
	Number      uint64
	Hash        common.Hash
	TimestampMs uint64
}

// Key returns the identity used for de-duplication: the hash, or the number
// when the hash is absent.
func (b *Block) Key() string {
	return blockKey(b.Hash, b.Number)
}

func blockKey(hash common.Hash, number uint64) string {
	if hash == (common.Hash{}) {
		return "#" + strconv.FormatUint(number, 10)
	}
	return hash.Hex()
}

// L1Block is an L1 block summary shown next to its L2 children.
type L1Block struct {
	Number      uint64
	Hash        common.Hash
	TimestampMs uint64
	TxCount     uint64
}
