package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/pkg/ui/components"
)

// blockRows converts the visible window into table rows, marking position.
// Blocks that fail to decode keep their number and hash only.
func blockRows(visible []domain.StoredBlock, position uint64) []components.BlockRow {
	rows := make([]components.BlockRow, 0, len(visible))
	for _, s := range visible {
		b, err := s.ToBlock()
		if err != nil {
			n, _ := s.BlockNumber()
			rows = append(rows, components.BlockRow{Number: n, Hash: s.Hash, Current: n == position})
			continue
		}

		row := components.BlockRow{
			Number:      b.Number,
			Hash:        s.Hash,
			TimestampMs: b.TimestampMs,
			TxCount:     b.TxCount,
			Current:     b.Number == position,
		}
		if pct, ok := b.GasUtilization(); ok {
			row.GasUsedPct = pct.StringFixed(1)
		}
		if fee, ok := b.BaseFeeGwei(); ok {
			row.BaseFeeGwei = fee.Round(4).String()
		}
		if b.L1Origin != nil {
			row.L1Number = strconv.FormatUint(b.L1Origin.Number, 10)
		}
		rows = append(rows, row)
	}
	return rows
}

func groupRows(groups []domain.L1Group) []components.L1GroupRow {
	rows := make([]components.L1GroupRow, 0, len(groups))
	for _, g := range groups {
		row := components.L1GroupRow{
			Known:    g.Known,
			L1Number: g.L1Number,
			L1Hash:   g.L1Hash,
			L2Count:  len(g.L2Blocks),
		}
		if n := len(g.L2Blocks); n > 0 {
			row.L2First, _ = g.L2Blocks[0].BlockNumber()
			row.L2Last, _ = g.L2Blocks[n-1].BlockNumber()
		}
		rows = append(rows, row)
	}
	return rows
}

func formatL1Detail(b domain.L1Block) string {
	ts := time.UnixMilli(int64(b.TimestampMs)).UTC().Format("15:04:05")
	return fmt.Sprintf("%d txs at %s UTC", b.TxCount, ts)
}
