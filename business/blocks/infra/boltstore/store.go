// Package boltstore persists the block window snapshot in a bbolt file.
package boltstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fd1az/blockviz/business/blocks/app"
	"github.com/fd1az/blockviz/business/blocks/domain"
	"github.com/fd1az/blockviz/internal/apperror"
	"github.com/fd1az/blockviz/internal/logger"
)

var (
	bucketName  = []byte(domain.SnapshotName)
	snapshotKey = []byte("snapshot")
)

var _ app.SnapshotRepository = (*Store)(nil)

// Store is a SnapshotRepository backed by a single bbolt file.
type Store struct {
	db   *bolt.DB
	path string
	log  logger.LoggerInterface
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string, log logger.LoggerInterface) (*Store, error) {
	if path == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("storage path is required"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperror.Internal(apperror.CodeStorageError, "create storage directory", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, apperror.Internal(apperror.CodeStorageError, "open "+path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, apperror.Internal(apperror.CodeStorageError, "create bucket", err)
	}

	return &Store{db: db, path: path, log: log}, nil
}

// Load reads the persisted snapshot, migrating older layouts. It returns
// nil, nil when nothing has been saved.
func (s *Store) Load(ctx context.Context) (*domain.Snapshot, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get(snapshotKey); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Internal(apperror.CodeStorageError, "read snapshot", err)
	}
	if raw == nil {
		return nil, nil
	}

	snap, migratedFrom, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	if migratedFrom >= 0 {
		s.log.Info(ctx, "migrated persisted snapshot", "from_version", migratedFrom, "to_version", domain.SnapshotVersion)
	}
	return snap, nil
}

// Save replaces the persisted snapshot.
func (s *Store) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(snapshotKey, data)
	})
	if err != nil {
		return apperror.Internal(apperror.CodeStorageError, "write snapshot", err)
	}
	s.log.Debug(ctx, "snapshot saved", "blocks", len(snapshot.Blocks), "bytes", len(data))
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
