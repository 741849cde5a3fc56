package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("results")

// BoltClient persists cache entries in a local bbolt file. Each value is
// stored behind an 8-byte big-endian expiry in Unix nanoseconds, 0 for none.
type BoltClient struct {
	db *bolt.DB
}

// NewBoltClient opens or creates the cache file at path.
func NewBoltClient(path string) (*BoltClient, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for bolt cache: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltClient{db: db}, nil
}

// Get retrieves a value from cache. Expired entries are removed lazily.
func (c *BoltClient) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var stale bool

	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if len(raw) < 8 {
			return nil
		}
		deadline := int64(binary.BigEndian.Uint64(raw[:8]))
		if deadline != 0 && time.Now().UnixNano() > deadline {
			stale = true
			return nil
		}
		// raw is only valid inside the transaction
		value = append([]byte(nil), raw[8:]...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt get: %w", err)
	}

	if stale {
		_ = c.Delete(ctx, key)
		return nil, ErrCacheMiss
	}
	if value == nil {
		return nil, ErrCacheMiss
	}
	return value, nil
}

// Set stores a value in cache with TTL.
func (c *BoltClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw := make([]byte, 8+len(value))
	if deadline := expiry(ttl); !deadline.IsZero() {
		binary.BigEndian.PutUint64(raw[:8], uint64(deadline.UnixNano()))
	}
	copy(raw[8:], value)

	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("bolt set: %w", err)
	}
	return nil
}

// Delete removes a value from cache.
func (c *BoltClient) Delete(ctx context.Context, key string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete: %w", err)
	}
	return nil
}

// Close closes the bolt database.
func (c *BoltClient) Close() error {
	return c.db.Close()
}
