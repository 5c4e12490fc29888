package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("safetime")
	boltKey    = []byte("cache")
)

// Bolt is a cache store backed by a bbolt file. The record survives
// process restarts, which lets Now answer right after startup as long as
// the tick-counter validity check passes.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (creating if needed) the bbolt file at path
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Load returns the stored record, or nil when empty
func (b *Bolt) Load() ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(boltBucket).Get(boltKey); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

// Store replaces the stored record
func (b *Bolt) Store(data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, data)
	})
}

// Clear erases the stored record
func (b *Bolt) Clear() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(boltKey)
	})
}

// Close closes the underlying database
func (b *Bolt) Close() error {
	return b.db.Close()
}
