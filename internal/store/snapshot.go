// Package store persists the minimal resumable playback state in a local
// BoltDB file. Only serializable fields cross the boundary; engine handles
// never do.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/mkohlmann/cadence/internal/logger"
	"github.com/mkohlmann/cadence/internal/playback"
)

const (
	bucketName  = "playback"
	snapshotKey = "snapshot"
)

// ErrNoSnapshot indicates no snapshot has been persisted yet
var ErrNoSnapshot = errors.New("no playback snapshot")

// SnapshotStore persists playback snapshots to a BoltDB file
type SnapshotStore struct {
	db *bolt.DB
}

// Open opens (creating if needed) the snapshot database at path
func Open(path string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot bucket: %w", err)
	}

	logger.Log.Debug().Str("path", path).Msg("Snapshot store opened")
	return &SnapshotStore{db: db}, nil
}

// Save overwrites the persisted snapshot
func (s *SnapshotStore) Save(snap playback.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(snapshotKey), data)
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot, or ErrNoSnapshot when none exists
func (s *SnapshotStore) Load() (playback.Snapshot, error) {
	var snap playback.Snapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(snapshotKey))
		if data == nil {
			return ErrNoSnapshot
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return playback.Snapshot{}, ErrNoSnapshot
		}
		return playback.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

// Clear removes any persisted snapshot
func (s *SnapshotStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(snapshotKey))
	})
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
