package main

import (
	"sync"

	"droidctl/pkg/types"
)

// defaultLogRingCapacity bounds the in-memory logcat history
const defaultLogRingCapacity = 10000

// logRing is a capacity-bounded store of log entries keyed by a monotonically
// increasing index. Keys start at 0 and are never reused; when the capacity
// is exceeded the entry with the lowest key is evicted.
type logRing struct {
	mu       sync.Mutex
	capacity int
	entries  map[int64]types.LogEntry
	minKey   int64
	nextKey  int64
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = defaultLogRingCapacity
	}
	return &logRing{
		capacity: capacity,
		entries:  make(map[int64]types.LogEntry, capacity),
	}
}

// Add stores an entry under the next key and returns that key
func (r *logRing) Add(entry types.LogEntry) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.nextKey
	r.entries[key] = entry
	r.nextKey++

	if len(r.entries) > r.capacity {
		delete(r.entries, r.minKey)
		r.minKey++
	}
	return key
}

// Since returns every buffered entry with a key strictly greater than after,
// in key order, plus the highest key returned. lastKey equals after when
// nothing qualified. Iterates newest to oldest so a near-head cursor does not
// pay for the full history.
func (r *logRing) Since(after int64) (entries []types.LogEntry, lastKey int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lastKey = after
	if r.nextKey == 0 || after >= r.nextKey-1 {
		return nil, lastKey
	}

	start := after + 1
	if start < r.minKey {
		start = r.minKey // evicted before ever being returned; documented lossy behavior
	}

	count := r.nextKey - start
	entries = make([]types.LogEntry, count)
	for key := r.nextKey - 1; key >= start; key-- {
		entries[key-start] = r.entries[key]
	}
	return entries, r.nextKey - 1
}

// All returns every buffered entry, oldest first
func (r *logRing) All() []types.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]types.LogEntry, 0, len(r.entries))
	for key := r.minKey; key < r.nextKey; key++ {
		if e, ok := r.entries[key]; ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Len returns the number of buffered entries
func (r *logRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Capacity returns the configured maximum entry count
func (r *logRing) Capacity() int { return r.capacity }
