package app

import (
	"sort"

	"github.com/fd1az/blockviz/business/blocks/domain"
)

// GroupByL1 groups blocks by their L1 origin, highest L1 number first.
// Blocks without an origin land in a trailing group with Known unset.
// Blocks keep their input order inside a group.
func GroupByL1(blocks []domain.StoredBlock) []domain.L1Group {
	byNumber := make(map[uint64]*domain.L1Group)
	var unknown *domain.L1Group

	for _, b := range blocks {
		if b.L1Origin == nil {
			if unknown == nil {
				unknown = &domain.L1Group{}
			}
			unknown.L2Blocks = append(unknown.L2Blocks, b)
			continue
		}
		origin, err := b.L1Origin.ToL1Origin()
		if err != nil {
			if unknown == nil {
				unknown = &domain.L1Group{}
			}
			unknown.L2Blocks = append(unknown.L2Blocks, b)
			continue
		}
		g, ok := byNumber[origin.Number]
		if !ok {
			g = &domain.L1Group{Known: true, L1Number: origin.Number, L1Hash: b.L1Origin.Hash}
			byNumber[origin.Number] = g
		}
		g.L2Blocks = append(g.L2Blocks, b)
	}

	groups := make([]domain.L1Group, 0, len(byNumber)+1)
	for _, g := range byNumber {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].L1Number > groups[j].L1Number })
	if unknown != nil {
		groups = append(groups, *unknown)
	}
	return groups
}

// MiddleBlock returns the median L2 number of the group (upper median for
// even sizes), used as the navigation target when a group is selected.
func MiddleBlock(g domain.L1Group) (uint64, bool) {
	numbers := make([]uint64, 0, len(g.L2Blocks))
	for _, b := range g.L2Blocks {
		if n, err := b.BlockNumber(); err == nil {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return 0, false
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers[len(numbers)/2], true
}
