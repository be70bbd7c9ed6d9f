package domain

// L1Group collects the visible L2 blocks derived from one L1 block.
// Known is false for the bucket of blocks that have no origin yet.
type L1Group struct {
	Known    bool
	L1Number uint64
	L1Hash   string
	L2Blocks []StoredBlock
}
