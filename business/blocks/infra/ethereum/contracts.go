package ethereum

import "github.com/ethereum/go-ethereum/common"

// L1BlockAddress is the OP Stack L1Block predeploy. Its storage holds the
// L1 origin attributes of the L2 block being read at.
var L1BlockAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")

// L1BlockABI covers the L1Block getters used to resolve an L1 origin.
const L1BlockABI = `[
	{"name": "number", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint64"}]},
	{"name": "hash", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "bytes32"}]},
	{"name": "timestamp", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint64"}]}
]`
