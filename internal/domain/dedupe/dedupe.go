// Package dedupe tracks award keys already counted during an import.
//
// A team event produces one source row per team member but a single medal
// for the country table; the deduper makes sure such an award is counted once.
package dedupe

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Deduper records award keys to ensure each award is counted at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets a key, e.g. when the row that recorded it was later
	// rejected and must not block a valid duplicate.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// AwardKey builds the identity of one awarded medal. Athlete rows of the same
// team event share the key; the medal colour is part of it so ties that award
// two bronzes in one event stay distinct per country.
func AwardKey(year int, season, sport, event, medal, noc string) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(strconv.Itoa(year))
	for _, part := range []string{season, sport, event, medal, noc} {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(strings.TrimSpace(part)))
	}
	return b.String()
}

// inMemoryDeduper keeps keys in a map. In bounded mode (maxSize > 0) the
// insertion order is kept in a ring and the oldest key is evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // key -> ring slot, -1 when unbounded
	ring    []string       // bounded mode only
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[key] = -1
		d.size.Add(1)
		return false
	}

	// Slot holds the oldest key once the ring has wrapped.
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
		d.size.Add(-1)
	}
	d.ring[d.next] = key
	d.seen[key] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, exists := d.seen[key]
	if !exists {
		return
	}
	delete(d.seen, key)
	if slot >= 0 {
		d.ring[slot] = ""
	}
	d.size.Add(-1)
}

// Size returns the current number of recorded keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
