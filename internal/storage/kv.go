package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by UpdatedAt when the key was never written.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage closed")

// KV is a synchronous string key-value substrate. A missing key is reported
// as ok == false with a nil error.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Close() error
}

// Timestamped is implemented by backends that know when a key was last
// written.
type Timestamped interface {
	UpdatedAt(key string) (time.Time, error)
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Backends lists the supported backend names.
func Backends() []string {
	return []string{BackendFile, BackendSQLite, BackendBolt, BackendMemory}
}

// Open builds the named backend rooted at dataDir.
func Open(backend, dataDir string) (KV, error) {
	switch strings.ToLower(backend) {
	case BackendMemory:
		return NewMemory(), nil
	case "", BackendFile:
		return OpenFile(dataDir)
	case BackendSQLite:
		return OpenSQLite(dataDir)
	case BackendBolt:
		return OpenBolt(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want one of %s)", backend, strings.Join(Backends(), ", "))
	}
}
