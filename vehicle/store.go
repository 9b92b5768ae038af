package vehicle

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHistorySize bounds the trailing snapshot window when no
// capacity is configured.
const DefaultHistorySize = 30

// Store keeps the current snapshot and a bounded ring of recent ones.
// A single writer publishes; any number of readers call Current without
// taking a lock, so a slow reader can never stall the poll loop.
type Store struct {
	current atomic.Pointer[Snapshot]
	seq     atomic.Uint64

	mu       sync.RWMutex
	ring     []*Snapshot
	capacity int
}

// NewStore creates a store retaining up to historySize snapshots.
func NewStore(historySize int) *Store {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Store{
		ring:     make([]*Snapshot, 0, historySize),
		capacity: historySize,
	}
}

// Publish makes records the current snapshot, tagged with the next
// sequence number. The oldest retained snapshot is evicted once the
// ring is full. Publish is not safe for concurrent use with itself;
// the collector is the only writer.
func (st *Store) Publish(source string, collectedAt time.Time, records []Record) *Snapshot {
	snap := newSnapshot(st.seq.Add(1), source, collectedAt, records)
	st.current.Store(snap)
	st.mu.Lock()
	if len(st.ring) == st.capacity {
		copy(st.ring, st.ring[1:])
		st.ring[len(st.ring)-1] = snap
	} else {
		st.ring = append(st.ring, snap)
	}
	st.mu.Unlock()
	return snap
}

// Current returns the latest published snapshot, or nil before the
// first successful collection cycle.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// History returns up to limit retained snapshots, most recent first.
// limit <= 0 means the full retained window.
func (st *Store) History(limit int) []*Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := len(st.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Snapshot, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, st.ring[i])
	}
	return out
}

// Sequence returns the sequence number of the most recent publish, 0
// before the first one.
func (st *Store) Sequence() uint64 {
	return st.seq.Load()
}
