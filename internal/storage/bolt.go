package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	kvBucket    = []byte("kv")
	stampBucket = []byte("updated_at")
)

// Bolt stores values in a single bbolt bucket.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) calcdeck.bolt in dataDir.
func OpenBolt(dataDir string) (*Bolt, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dataDir, "calcdeck.bolt"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{kvBucket, stampBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid for the life of the transaction.
		value, ok = string(v), true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, ok, nil
}

func (b *Bolt) Set(key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(kvBucket).Put([]byte(key), []byte(value)); err != nil {
			return err
		}
		stamp := time.Now().UTC().Format(time.RFC3339Nano)
		return tx.Bucket(stampBucket).Put([]byte(key), []byte(stamp))
	})
}

// UpdatedAt reports when key was last written.
func (b *Bolt) UpdatedAt(key string) (time.Time, error) {
	var raw string
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(stampBucket).Get([]byte(key)); v != nil {
			raw = string(v)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Time{}, ErrNotFound
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

var (
	_ KV          = (*Bolt)(nil)
	_ Timestamped = (*Bolt)(nil)
)
