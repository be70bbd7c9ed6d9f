package domain

// SnapshotName is the name the window snapshot is persisted under.
const SnapshotName = "blockchain-blocks-storage"

// SnapshotVersion is the current persisted layout version.
const SnapshotVersion = 1

// MaxSnapshotBlocks caps the blocks written to a snapshot.
const MaxSnapshotBlocks = 200

// Snapshot is the persisted slice of the window state. Transient flags such
// as the historical loading indicator are never persisted.
type Snapshot struct {
	Version         int           `json:"version"`
	Blocks          []StoredBlock `json:"blocks"`
	TipNumber       uint64        `json:"tipNumber,string"`
	CurrentPosition uint64        `json:"currentPosition,string"`
	IsLiveMode      bool          `json:"isLiveMode"`
}
