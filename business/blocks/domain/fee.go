package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var gweiExp = int32(-9)

// BaseFeeGwei returns the base fee in gwei, or false when absent.
func (b *Block) BaseFeeGwei() (decimal.Decimal, bool) {
	if b.BaseFeePerGas == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(b.BaseFeePerGas, gweiExp), true
}

// GasUtilization returns gasUsed/gasLimit as a percentage, or false when
// either value is absent or the limit is zero.
func (b *Block) GasUtilization() (decimal.Decimal, bool) {
	if b.GasUsed == nil || b.GasLimit == nil || b.GasLimit.Sign() == 0 {
		return decimal.Zero, false
	}
	used := decimal.NewFromBigInt(b.GasUsed, 0)
	limit := decimal.NewFromBigInt(b.GasLimit, 0)
	return used.Mul(decimal.NewFromInt(100)).DivRound(limit, 2), true
}

// FormatGwei renders wei as gwei with up to four decimals.
func FormatGwei(wei *big.Int) string {
	if wei == nil {
		return "-"
	}
	return decimal.NewFromBigInt(wei, gweiExp).Round(4).String()
}
