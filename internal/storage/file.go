package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File stores each key as its own file under dir. Writes go through a temp
// file and rename so a reader never sees a half-written value.
type File struct {
	dir string
	mu  sync.Mutex
}

// OpenFile creates dir if needed and returns a file-backed KV.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file backend requires a data directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// UpdatedAt returns the modification time of the key's file.
func (f *File) UpdatedAt(key string) (time.Time, error) {
	info, err := os.Stat(f.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (f *File) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, f.pathFor(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func (f *File) Close() error {
	return nil
}

// pathFor hex-encodes the key so any key maps to a safe file name.
func (f *File) pathFor(key string) string {
	return filepath.Join(f.dir, hex.EncodeToString([]byte(key))+".json")
}

var (
	_ KV          = (*File)(nil)
	_ Timestamped = (*File)(nil)
)
