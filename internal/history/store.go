// Package history keeps a bounded, recency-ordered list of past calculations
// per calculator.
//
// All calculators share one persisted collection stored under a single key.
// Partitioning by calculator ID is a view computed on every read and write:
// each write reads the whole collection, prepends the new entry, regroups by
// calculator, truncates every group to the cap and writes the result back.
// The total size is bounded by cap × number of calculators, so the full
// rewrite stays cheap. An unbounded number of calculators would need one key
// per partition instead.
//
// History is a convenience. Persistence failures and corrupt data never reach
// the caller: Load returns an empty list and Record/Clear become no-ops.
//
// Writers in separate processes are not coordinated. Two processes doing a
// read-modify-write at the same time race and the last one to write wins.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultCap is the maximum number of entries kept per calculator.
	DefaultCap = 10
	// DefaultKey is the substrate key holding the whole collection.
	DefaultKey = "calculator-history"
)

var (
	// ErrPersistenceUnavailable means the substrate could not be read or written.
	ErrPersistenceUnavailable = errors.New("history persistence unavailable")
	// ErrMalformedPersistedData means the stored collection could not be parsed.
	ErrMalformedPersistedData = errors.New("malformed persisted history")
)

// Substrate is the key-value storage the store persists into.
type Substrate interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Observer receives store events. Implementations must be safe for
// concurrent use and must not call back into the Store.
type Observer interface {
	Recorded(calculatorID string)
	Evicted(calculatorID string, n int)
	Cleared(calculatorID string, n int)
	Failed(op string, err error)
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	Cap      int
	Key      string
	Now      func() time.Time
	NewID    func() string
	Logger   *slog.Logger
	Observer Observer
}

// PartitionSummary describes one calculator's slice of the collection.
type PartitionSummary struct {
	CalculatorID string `json:"calculatorId" yaml:"calculatorId"`
	Count        int    `json:"count" yaml:"count"`
	NewestAt     int64  `json:"newestAt" yaml:"newestAt"`
}

// Store is the bounded history store.
type Store struct {
	sub      Substrate
	cap      int
	key      string
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
	observer Observer

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// New returns a Store persisting into sub.
func New(sub Substrate, opts Options) *Store {
	s := &Store{
		sub:      sub,
		cap:      opts.Cap,
		key:      opts.Key,
		now:      opts.Now,
		newID:    opts.NewID,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
	if s.cap <= 0 {
		s.cap = DefaultCap
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newEntryID
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Cap returns the per-calculator entry limit.
func (s *Store) Cap() int {
	return s.cap
}

// Load returns the calculator's entries, most recent first.
func (s *Store) Load(calculatorID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.fail("load", err)
		return []Entry{}
	}

	out := make([]Entry, 0, s.cap)
	for _, e := range entries {
		if e.CalculatorID == calculatorID {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	if len(out) > s.cap {
		out = out[:s.cap]
	}
	return out
}

// Record stores a new entry for calculatorID and evicts the oldest entries
// beyond the cap. The entry is returned even if it could not be persisted.
func (s *Store) Record(calculatorID string, inputs *Inputs, result string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inputs == nil {
		inputs = NewInputs()
	}
	entry := Entry{
		ID:           s.newID(),
		CalculatorID: calculatorID,
		Inputs:       inputs,
		Result:       result,
		CreatedAt:    s.now().UnixMilli(),
	}

	entries, err := s.read()
	if err != nil {
		s.fail("record", err)
		if errors.Is(err, ErrPersistenceUnavailable) {
			return entry
		}
		// Corrupt data is dropped and replaced by this write.
		entries = nil
	}

	// Keep createdAt strictly decreasing within the partition even when
	// the clock has not moved since the previous record.
	if newest, ok := newestCreatedAt(entries, calculatorID); ok && entry.CreatedAt <= newest {
		entry.CreatedAt = newest + 1
	}

	merged, evicted := regroup(append([]Entry{entry}, entries...), s.cap)
	if err := s.write(merged); err != nil {
		s.fail("record", err)
		return entry
	}

	if s.observer != nil {
		s.observer.Recorded(calculatorID)
		for id, n := range evicted {
			s.observer.Evicted(id, n)
		}
	}
	s.logger.Debug("history recorded", "calculator", calculatorID, "id", entry.ID, "evicted", evicted[calculatorID])
	return entry
}

// Clear removes every entry for calculatorID. Other calculators are untouched.
func (s *Store) Clear(calculatorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.fail("clear", err)
		if errors.Is(err, ErrPersistenceUnavailable) {
			return
		}
		entries = nil
	}

	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.CalculatorID != calculatorID {
			kept = append(kept, e)
		}
	}
	removed := len(entries) - len(kept)
	if removed == 0 && err == nil {
		return
	}

	if err := s.write(kept); err != nil {
		s.fail("clear", err)
		return
	}
	if s.observer != nil {
		s.observer.Cleared(calculatorID, removed)
	}
	s.logger.Debug("history cleared", "calculator", calculatorID, "removed", removed)
}

// Partitions summarizes every calculator with stored entries, most recently
// used first.
func (s *Store) Partitions() []PartitionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.fail("partitions", err)
		return []PartitionSummary{}
	}

	index := make(map[string]int)
	out := []PartitionSummary{}
	for _, e := range entries {
		i, ok := index[e.CalculatorID]
		if !ok {
			i = len(out)
			index[e.CalculatorID] = i
			out = append(out, PartitionSummary{CalculatorID: e.CalculatorID})
		}
		if out[i].Count < s.cap {
			out[i].Count++
		}
		if e.CreatedAt > out[i].NewestAt {
			out[i].NewestAt = e.CreatedAt
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NewestAt > out[j].NewestAt
	})
	return out
}

// Snapshot returns the whole collection grouped by calculator, each group
// most recent first and capped.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		s.fail("snapshot", err)
		return []Entry{}
	}
	out, _ := regroup(entries, s.cap)
	return out
}

// Purge empties the whole collection. Unlike the per-calculator operations
// it reports a persistence failure to the caller.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(nil); err != nil {
		s.fail("purge", err)
		return err
	}
	return nil
}

func (s *Store) read() ([]Entry, error) {
	raw, ok, err := s.sub.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrPersistenceUnavailable, s.key, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	entries, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPersistedData, err)
	}
	return entries, nil
}

func (s *Store) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrPersistenceUnavailable, err)
	}
	if err := s.sub.Set(s.key, string(data)); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrPersistenceUnavailable, s.key, err)
	}
	return nil
}

func (s *Store) fail(op string, err error) {
	if errors.Is(err, ErrMalformedPersistedData) {
		s.logger.Warn("discarding unreadable history", "op", op, "key", s.key, "error", err)
	} else {
		s.logger.Debug("history persistence failed", "op", op, "key", s.key, "error", err)
	}
	if s.observer != nil {
		s.observer.Failed(op, err)
	}
}

// decode parses the persisted collection. A single bad entry rejects the
// whole collection; there is no per-entry salvage.
func decode(raw string) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == "" || entries[i].CalculatorID == "" {
			return nil, fmt.Errorf("entry %d is missing id or calculatorId", i)
		}
		if entries[i].Inputs == nil {
			entries[i].Inputs = NewInputs()
		}
	}
	return entries, nil
}

// regroup partitions entries by calculator in first-seen order, sorts each
// partition newest first and truncates it to limit. Every partition is
// re-truncated, not only the one just written.
func regroup(entries []Entry, limit int) ([]Entry, map[string]int) {
	var order []string
	groups := make(map[string][]Entry)
	for _, e := range entries {
		if _, seen := groups[e.CalculatorID]; !seen {
			order = append(order, e.CalculatorID)
		}
		groups[e.CalculatorID] = append(groups[e.CalculatorID], e)
	}

	out := make([]Entry, 0, len(entries))
	evicted := make(map[string]int)
	for _, id := range order {
		g := groups[id]
		sortNewestFirst(g)
		if len(g) > limit {
			evicted[id] = len(g) - limit
			g = g[:limit]
		}
		out = append(out, g...)
	}
	return out, evicted
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt > entries[j].CreatedAt
		}
		return entries[i].ID > entries[j].ID
	})
}

func newestCreatedAt(entries []Entry, calculatorID string) (int64, bool) {
	var (
		newest int64
		found  bool
	)
	for _, e := range entries {
		if e.CalculatorID == calculatorID && (!found || e.CreatedAt > newest) {
			newest, found = e.CreatedAt, true
		}
	}
	return newest, found
}

// newEntryID returns a UUIDv7, whose string form sorts by creation time.
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
