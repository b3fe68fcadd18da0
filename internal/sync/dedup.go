package sync

import (
	"fmt"
	"sync"

	"github.com/matheus3301/dialog/internal/event"
)

// ProcessedStore is the durable side of Dedup.
type ProcessedStore interface {
	MarkProcessed(id event.ID) (bool, error)
	ProcessedIDs() ([]event.ID, error)
}

// Dedup remembers which relay events have been handed to the group
// channel. Marks are durable before they are visible in memory.
type Dedup struct {
	db ProcessedStore

	mu   sync.RWMutex
	seen map[event.ID]struct{}
}

// NewDedup returns a Dedup preloaded from db.
func NewDedup(db ProcessedStore) (*Dedup, error) {
	d := &Dedup{db: db, seen: map[event.ID]struct{}{}}
	ids, err := db.ProcessedIDs()
	if err != nil {
		return nil, fmt.Errorf("load processed events: %w", err)
	}
	for _, id := range ids {
		d.seen[id] = struct{}{}
	}
	return d, nil
}

// Seen reports whether id was marked.
func (d *Dedup) Seen(id event.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[id]
	return ok
}

// Mark records id durably. It reports false when id was already marked.
func (d *Dedup) Mark(id event.ID) (bool, error) {
	if d.Seen(id) {
		return false, nil
	}
	inserted, err := d.db.MarkProcessed(id)
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", id.Short(), err)
	}
	d.mu.Lock()
	d.seen[id] = struct{}{}
	d.mu.Unlock()
	return inserted, nil
}

// Len returns the number of marked events.
func (d *Dedup) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seen)
}
