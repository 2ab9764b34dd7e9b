// Package dedupe tracks ids of deleted events so that late notifications and
// in-flight fetches cannot bring them back.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tombstones records deleted event ids.
type Tombstones interface {
	// Bury records id as deleted. Returns false if id was already buried
	// or is empty.
	Bury(ctx context.Context, id string) bool

	// Buried reports whether id has been recorded as deleted.
	Buried(ctx context.Context, id string) bool

	Size() int64
}

// inMemoryTombstones keeps ids in a map. In bounded mode a ring of insertion
// order evicts the oldest id once maxSize is reached.
type inMemoryTombstones struct {
	mu      sync.RWMutex
	buried  map[string]int // id -> ring slot, -1 in unbounded mode
	ring    []string
	next    int
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryTombstones creates a tombstone set with configuration options.
func NewInMemoryTombstones(opts ...Option) Tombstones {
	d := &inMemoryTombstones{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.buried = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

func (d *inMemoryTombstones) Bury(_ context.Context, id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.buried[id]; exists {
		return false
	}

	if d.maxSize <= 0 {
		d.buried[id] = -1
		d.size.Add(1)
		return true
	}

	// Oldest entry lives in the slot about to be overwritten.
	if old := d.ring[d.next]; old != "" {
		if slot, ok := d.buried[old]; ok && slot == d.next {
			delete(d.buried, old)
			d.size.Add(-1)
		}
	}
	d.ring[d.next] = id
	d.buried[id] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Add(1)
	return true
}

func (d *inMemoryTombstones) Buried(_ context.Context, id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.buried[id]
	return ok
}

// Size returns the current number of buried ids.
func (d *inMemoryTombstones) Size() int64 {
	return d.size.Load()
}
