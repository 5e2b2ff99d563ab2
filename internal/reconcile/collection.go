package reconcile

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/repairtracker/repairsync/internal/wire"
)

// Record is any entity with a numeric id unique within its collection.
type Record interface {
	RecordID() int64
}

// Collection holds records ordered by first insertion, unique by id. All
// mutation happens on the dispatch path; the lock exists so consumers on
// other goroutines can take consistent snapshots.
type Collection[T Record] struct {
	mu      sync.RWMutex
	records []T
}

// NewCollection creates an empty collection.
func NewCollection[T Record]() *Collection[T] {
	return &Collection[T]{}
}

// Apply reconciles one envelope against the collection. Envelope types
// other than update and delete are ignored. A record array that fails to
// decode rejects the whole envelope; malformed composite keys inside a
// delete are individually skipped.
func (c *Collection[T]) Apply(env wire.Envelope) error {
	switch env.Type {
	case wire.TypeUpdate:
		var incoming []T
		if err := json.Unmarshal(env.Data, &incoming); err != nil {
			return fmt.Errorf("decode update records: %w", err)
		}
		c.upsert(incoming)
		return nil

	case wire.TypeDelete:
		keys, err := env.DeleteKeys()
		if err != nil {
			return err
		}
		c.removeKeys(keys)
		return nil
	}

	return nil
}

// upsert rebuilds the collection with the incoming records applied in array
// order. An existing id is replaced in place, preserving the relative order
// of other elements; a new id is appended. Later entries for the same id
// win.
func (c *Collection[T]) upsert(incoming []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]T, len(c.records), len(c.records)+len(incoming))
	copy(next, c.records)

	index := make(map[int64]int, len(next))
	for i, rec := range next {
		index[rec.RecordID()] = i
	}

	for _, rec := range incoming {
		id := rec.RecordID()
		if pos, ok := index[id]; ok {
			next[pos] = rec
			continue
		}
		index[id] = len(next)
		next = append(next, rec)
	}

	c.records = next
}

// removeKeys drops every record whose id matches a successfully decoded
// composite key. Malformed keys decode to no match.
func (c *Collection[T]) removeKeys(keys []string) {
	ids := make(map[int64]struct{}, len(keys))
	for _, key := range keys {
		_, id, err := wire.ParseKey(key)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	if len(ids) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]T, 0, len(c.records))
	for _, rec := range c.records {
		if _, drop := ids[rec.RecordID()]; drop {
			continue
		}
		next = append(next, rec)
	}
	c.records = next
}

// Snapshot returns a copy of the collection in insertion order.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.records))
	copy(out, c.records)
	return out
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(id int64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rec := range c.records {
		if rec.RecordID() == id {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
