package storage

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const artifactsBucket = "artifacts"

// BoltStore keeps objects in a local bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("NewBoltStore: opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewBoltStore: creating bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put stores data under name.
func (s *BoltStore) Put(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("BoltStore.Put: empty name")
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).Put([]byte(name), data)
	})
	if err != nil {
		return fmt.Errorf("BoltStore.Put: %q: %w", name, err)
	}
	return nil
}

// Get returns a copy of the bytes stored under name.
func (s *BoltStore) Get(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(artifactsBucket)).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("BoltStore.Get: %q: %w", name, err)
	}
	return out, nil
}

// List returns all names in key order.
func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("BoltStore.List: %w", err)
	}
	return names, nil
}

// Delete removes name.
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(artifactsBucket))
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("BoltStore.Delete: %q: %w", name, err)
	}
	return nil
}
