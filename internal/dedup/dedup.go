// Package dedup provides in-memory deduplication of inbound message identifiers.
//
// The platform redelivers webhook batches whenever it suspects a delivery
// failed, so the same message id can arrive any number of times. Deduplicator
// remembers recently accepted ids in a bounded FIFO set and admits each id
// exactly once within the retention window.
package dedup

import (
	"log/slog"
	"sync"
)

// DefaultCapacity is the default number of message ids retained.
const DefaultCapacity = 1000

// Deduplicator is a bounded set of recently processed message identifiers.
// The zero value is not usable; construct with New.
type Deduplicator struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string // insertion order, oldest first
	capacity int
}

// New creates a Deduplicator retaining at most capacity ids. A capacity of
// zero or less falls back to DefaultCapacity.
func New(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Deduplicator{
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Accept reports whether id is new, recording it when it is. The check and
// the insert happen under one lock so concurrent deliveries of the same id
// cannot both be admitted. Eviction is FIFO: when the set is full the oldest
// accepted id is forgotten first.
func (d *Deduplicator) Accept(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return false
	}
	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
		slog.Debug("Deduplicator.Accept: evicted oldest id", "evicted", oldest)
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	return true
}

// Len returns the number of ids currently retained.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
