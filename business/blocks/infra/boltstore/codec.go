package boltstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
)

// envelope is enough of any persisted layout to tell versions apart.
type envelope struct {
	Version *json.Number    `json:"version"`
	State   json.RawMessage `json:"state"`
}

// legacyState is the v0 layout: the viewer's persisted store state nested
// under "state", with tip and position written either as strings or numbers.
type legacyState struct {
	Blocks          []domain.StoredBlock `json:"blocks"`
	TipNumber       flexUint             `json:"tipNumber"`
	CurrentPosition flexUint             `json:"currentPosition"`
	IsLiveMode      bool                 `json:"isLiveMode"`
}

type flexUint uint64

func (u *flexUint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unsigned integer %q", s)
	}
	*u = flexUint(n)
	return nil
}

func encodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	snap.Version = domain.SnapshotVersion
	if len(snap.Blocks) > domain.MaxSnapshotBlocks {
		snap.Blocks = snap.Blocks[:domain.MaxSnapshotBlocks]
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, apperror.Internal(apperror.CodeStorageError, "encode snapshot", err)
	}
	return data, nil
}

// decodeSnapshot parses any supported layout into the current one.
// migratedFrom is the source version when a migration ran, -1 otherwise.
func decodeSnapshot(raw []byte) (snap *domain.Snapshot, migratedFrom int, err error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, -1, corrupt(err)
	}

	version := 0
	switch {
	case env.Version != nil:
		v, err := env.Version.Int64()
		if err != nil {
			return nil, -1, corrupt(err)
		}
		version = int(v)
	case env.State == nil:
		return nil, -1, corrupt(fmt.Errorf("missing version"))
	}

	switch version {
	case 0:
		snap, err := migrateV0(env.State)
		if err != nil {
			return nil, -1, err
		}
		return snap, 0, nil
	case domain.SnapshotVersion:
		var s domain.Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, -1, corrupt(err)
		}
		return &s, -1, nil
	default:
		return nil, -1, apperror.New(apperror.CodeSnapshotVersionUnsupported,
			apperror.WithContext(fmt.Sprintf("version %d", version)))
	}
}

func migrateV0(state json.RawMessage) (*domain.Snapshot, error) {
	if len(state) == 0 {
		return nil, corrupt(fmt.Errorf("v0 snapshot has no state"))
	}
	var legacy legacyState
	if err := json.Unmarshal(state, &legacy); err != nil {
		return nil, corrupt(err)
	}
	return &domain.Snapshot{
		Version:         domain.SnapshotVersion,
		Blocks:          legacy.Blocks,
		TipNumber:       uint64(legacy.TipNumber),
		CurrentPosition: uint64(legacy.CurrentPosition),
		IsLiveMode:      legacy.IsLiveMode,
	}, nil
}

func corrupt(cause error) error {
	return apperror.New(apperror.CodeSnapshotCorrupt, apperror.WithCause(cause))
}
