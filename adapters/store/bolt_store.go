package store

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/seclane/authgate/ports"
)

// BoltStore is a BBolt-backed durable tier for single-node deployments.
// Each session scope is one bucket.
type BoltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// NewBoltStore returns a durable tier scoped to one session, backed by the
// given BBolt database.
func NewBoltStore(db *bbolt.DB, sessionID string) *BoltStore {
	return &BoltStore{
		db:     db,
		bucket: []byte("markers:" + sessionID),
	}
}

// OpenBolt opens a BBolt database at the given path.
func OpenBolt(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return db, nil
}

var _ ports.KV = (*BoltStore)(nil)

// Get returns the value under key, with ok reporting presence.
func (s *BoltStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var ok bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if data := b.Get([]byte(key)); data != nil {
			value = string(data)
			ok = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read marker: %w", err)
	}

	return value, ok, nil
}

// Set stores value under key.
func (s *BoltStore) Set(ctx context.Context, key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

// Delete removes key. Absent keys and buckets are not an error.
func (s *BoltStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete marker: %w", err)
	}
	return nil
}

// Clear removes the whole session scope.
func (s *BoltStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(s.bucket)
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear markers: %w", err)
	}
	return nil
}
